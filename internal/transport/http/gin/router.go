package httpgin

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/voxtour/voxtour-go/internal/domain"
	"github.com/voxtour/voxtour-go/internal/repository"
	redisrepo "github.com/voxtour/voxtour-go/internal/repository/redis"
	"github.com/voxtour/voxtour-go/internal/service"
	"github.com/voxtour/voxtour-go/internal/service/fees"
	"github.com/voxtour/voxtour-go/internal/service/participants"
	"github.com/voxtour/voxtour-go/internal/service/tokens"
	"github.com/voxtour/voxtour-go/internal/service/tours"
	"github.com/voxtour/voxtour-go/internal/service/webhooks"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	limiter *redisrepo.SlidingWindowLimiter,
	cache *redisrepo.Cache,
	webhookSecret string,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	r.Use(SessionMiddleware(svcs.Tokens))
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/tours/:id", handleGetTour(svcs, cache))
	r.GET("/tours/code/:code", handleGetTourByCode(svcs, cache, limiter))
	r.GET("/tours/:id/participants", handleListParticipants(svcs))
	r.GET("/tours/:id/participants/count", handleParticipantCount(svcs))

	r.POST("/tours/:id/join", handleJoinTour(svcs))
	r.POST("/tours/:id/leave", handleLeaveTour(svcs))
	r.POST("/tours/:id/feedback", handleSubmitFeedback(svcs))
	r.POST("/tours/:id/tips", handleCreateTip(svcs, idem))
	r.POST("/fees/calculate", handleCalculateFees(svcs))
	r.POST("/tokens", handleRoomToken(svcs))

	// Guide API: requires a session bearer
	r.POST("/tours", handleCreateTour(svcs))
	r.GET("/tours", handleListTours(svcs))
	r.POST("/tours/:id/start", handleStartTour(svcs))
	r.POST("/tours/:id/revert-start", handleRevertStart(svcs))
	r.POST("/tours/:id/end", handleEndTour(svcs))
	r.POST("/tours/:id/cancel", handleCancelTour(svcs))
	r.DELETE("/tours/:id", handleDeleteTour(svcs))

	// Provider webhooks: HMAC-signed, no session
	wh := r.Group("/webhooks")
	{
		wh.POST("/room", handleRoomWebhook(svcs, webhookSecret))
		wh.POST("/payment", handlePaymentWebhook(svcs, webhookSecret))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Create tour
// @Param    req body  CreateTourRequest true "payload"
// @Success  201 {object} TourResponse
// @Failure  401 {object} ErrorResponse
// @Router   /tours [post]
func handleCreateTour(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := mustSession(c)
		if !ok {
			return
		}
		var req CreateTourRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		t, err := svcs.Tours.Create(c.Request.Context(), sess, req.Title)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, toTourResponse(t))
	}
}

// @Summary  List own tours
// @Success  200 {array} TourResponse
// @Failure  401 {object} ErrorResponse
// @Router   /tours [get]
func handleListTours(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := mustSession(c)
		if !ok {
			return
		}
		list, err := svcs.Tours.ListByGuide(c.Request.Context(), sess)
		if err != nil {
			respondErr(c, err)
			return
		}
		out := make([]TourResponse, 0, len(list))
		for i := range list {
			out = append(out, toTourResponse(&list[i]))
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Get tour
// @Param    id  path  string  true  "Tour ID (uuid)"
// @Success  200 {object} TourResponse
// @Failure  404 {object} ErrorResponse
// @Router   /tours/{id} [get]
func handleGetTour(svcs *service.Services, cache *redisrepo.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		tourID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		resp, err := redisrepo.GetOrSetJSON(
			c.Request.Context(),
			cache,
			redisrepo.KeyTourSummary(tourID),
			15*time.Second,
			func(ctx context.Context) (TourResponse, error) {
				t, err := svcs.Tours.Get(ctx, tourID)
				if err != nil {
					return TourResponse{}, err
				}
				return toTourResponse(t), nil
			},
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, resp, "public, max-age=15", true)
	}
}

// @Summary  Resolve join code
// @Param    code  path  string  true  "Join code"
// @Success  200 {object} TourResponse
// @Failure  404 {object} ErrorResponse
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /tours/code/{code} [get]
func handleGetTourByCode(
	svcs *service.Services,
	cache *redisrepo.Cache,
	limiter *redisrepo.SlidingWindowLimiter,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
		if code == "" {
			badRequest(c, "missing code")
			return
		}

		if limiter != nil {
			allowed, _, retryAfter, err := limiter.Allow(c.Request.Context(), "ip:"+c.ClientIP())
			if err == nil && !allowed {
				c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
				return
			}
		}

		resp, err := redisrepo.GetOrSetJSON(
			c.Request.Context(),
			cache,
			redisrepo.KeyTourByCode(code),
			15*time.Second,
			func(ctx context.Context) (TourResponse, error) {
				t, err := svcs.Tours.GetByCode(ctx, code)
				if err != nil {
					return TourResponse{}, err
				}
				return toTourResponse(t), nil
			},
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, resp, "public, max-age=15", true)
	}
}

// @Summary  Start tour
// @Param    id  path  string  true  "Tour ID (uuid)"
// @Success  200 {object} TourResponse
// @Failure  401 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "not pending / another tour active"
// @Router   /tours/{id}/start [post]
func handleStartTour(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := mustSession(c)
		if !ok {
			return
		}
		tourID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		t, err := svcs.Tours.Start(c.Request.Context(), sess, tourID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toTourResponse(t))
	}
}

// @Summary  Revert a start whose room connect failed
// @Param    id  path  string  true  "Tour ID (uuid)"
// @Success  200 {object} TourResponse
// @Router   /tours/{id}/revert-start [post]
func handleRevertStart(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := mustSession(c); !ok {
			return
		}
		tourID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		t, err := svcs.Tours.RevertStart(c.Request.Context(), tourID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toTourResponse(t))
	}
}

// @Summary  End tour (idempotent)
// @Param    id  path  string  true  "Tour ID (uuid)"
// @Success  200 {object} TourResponse
// @Failure  409 {object} ErrorResponse "not active"
// @Router   /tours/{id}/end [post]
func handleEndTour(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := mustSession(c); !ok {
			return
		}
		tourID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		t, err := svcs.Tours.End(c.Request.Context(), tourID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toTourResponse(t))
	}
}

// @Summary  Cancel pending tour
// @Param    id  path  string  true  "Tour ID (uuid)"
// @Success  200 {object} TourResponse
// @Failure  409 {object} ErrorResponse "not pending"
// @Router   /tours/{id}/cancel [post]
func handleCancelTour(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := mustSession(c)
		if !ok {
			return
		}
		tourID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		t, err := svcs.Tours.Cancel(c.Request.Context(), sess, tourID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toTourResponse(t))
	}
}

// @Summary  Soft-delete a terminal tour
// @Param    id  path  string  true  "Tour ID (uuid)"
// @Success  204
// @Failure  409 {object} ErrorResponse "tour not completed or cancelled"
// @Router   /tours/{id} [delete]
func handleDeleteTour(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := mustSession(c)
		if !ok {
			return
		}
		tourID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		if err := svcs.Tours.SoftDelete(c.Request.Context(), sess, tourID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Join tour
// @Param    id  path  string  true  "Tour ID (uuid)"
// @Param    req body  JoinTourRequest true "payload"
// @Success  200 {object} ParticipantResponse
// @Failure  409 {object} ErrorResponse "tour already over"
// @Router   /tours/{id}/join [post]
func handleJoinTour(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tourID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req JoinTourRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		p, err := svcs.Participants.Join(c.Request.Context(), tourID, req.DeviceID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toParticipantResponse(p))
	}
}

// @Summary  Leave tour
// @Param    id  path  string  true  "Tour ID (uuid)"
// @Param    req body  LeaveTourRequest true "payload"
// @Success  204
// @Router   /tours/{id}/leave [post]
func handleLeaveTour(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tourID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req LeaveTourRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := svcs.Participants.Leave(c.Request.Context(), tourID, req.DeviceID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  List participants
// @Param    id  path  string  true  "Tour ID (uuid)"
// @Success  200 {array} ParticipantResponse
// @Router   /tours/{id}/participants [get]
func handleListParticipants(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tourID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		list, err := svcs.Participants.List(c.Request.Context(), tourID)
		if err != nil {
			respondErr(c, err)
			return
		}
		out := make([]ParticipantResponse, 0, len(list))
		for i := range list {
			out = append(out, toParticipantResponse(&list[i]))
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Participant count
// @Param    id  path  string  true  "Tour ID (uuid)"
// @Success  200 {object} ParticipantCountResponse
// @Router   /tours/{id}/participants/count [get]
func handleParticipantCount(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tourID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		t, err := svcs.Tours.Get(c.Request.Context(), tourID)
		if err != nil {
			respondErr(c, err)
			return
		}
		resp := ParticipantCountResponse{
			Status: string(t.Status),
			Count:  participants.Count(t),
		}
		writeJSONWithCache(c, http.StatusOK, resp, "public, max-age=5", true)
	}
}

// @Summary  Submit rating
// @Param    id  path  string  true  "Tour ID (uuid)"
// @Param    req body  FeedbackRequest true "payload"
// @Success  200 {object} FeedbackResponse
// @Failure  409 {object} ErrorResponse "tour not rateable yet"
// @Router   /tours/{id}/feedback [post]
func handleSubmitFeedback(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tourID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req FeedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		f, err := svcs.Participants.RateTour(
			c.Request.Context(),
			tourID,
			req.DeviceID,
			req.Rating,
			req.Comment,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toFeedbackResponse(f))
	}
}

// @Summary  Calculate tip fees
// @Param    req body  CalculateFeesRequest true "payload"
// @Success  200 {object} fees.Breakdown
// @Failure  400 {object} ErrorResponse "amount or currency invalid"
// @Router   /fees/calculate [post]
func handleCalculateFees(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CalculateFeesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		bd, err := svcs.Fees.Calculate(req.Amount, req.Currency)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, bd)
	}
}

// @Summary  Create tip (idempotent)
// @Param    id  path  string  true  "Tour ID (uuid)"
// @Param    req body  CreateTipRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} TipResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "idem in progress"
// @Router   /tours/{id}/tips [post]
func handleCreateTip(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		tourID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req CreateTipRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemTip(tourID, idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusCreated,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		tip, err := svcs.Fees.CreateTip(
			c.Request.Context(),
			tourID,
			req.DeviceID,
			req.Amount,
			req.Currency,
		)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := toTipResponse(tip)

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Mint room token
// @Param    req body  TokenRequest true "payload"
// @Success  200 {object} TokenResponse
// @Failure  401 {object} ErrorResponse "not the owner / never joined"
// @Router   /tokens [post]
func handleRoomToken(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		tourID, err := uuid.Parse(req.TourID)
		if err != nil {
			badRequest(c, "invalid tour_id")
			return
		}

		var sess *domain.Session
		if s, ok := sessionFrom(c); ok {
			sess = &s
		}

		token, err := svcs.Tokens.RoomToken(
			c.Request.Context(),
			sess,
			tourID,
			domain.Role(req.Role),
			req.DeviceID,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, TokenResponse{Token: token})
	}
}

// @Summary  Room provider webhook
// @Success  200 {object} map[string]bool
// @Failure  400 {object} ErrorResponse "malformed event"
// @Failure  401 {object} ErrorResponse "bad signature"
// @Router   /webhooks/room [post]
func handleRoomWebhook(svcs *service.Services, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			badRequest(c, "unreadable body")
			return
		}
		if !verifySignature(secret, body, c.GetHeader("X-Webhook-Signature")) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid signature"})
			return
		}

		var ev webhooks.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			badRequest(c, "malformed event payload")
			return
		}

		if err := svcs.Webhooks.Process(c.Request.Context(), ev); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// @Summary  Payment processor webhook
// @Success  200 {object} TipResponse
// @Failure  401 {object} ErrorResponse "bad signature"
// @Router   /webhooks/payment [post]
func handlePaymentWebhook(svcs *service.Services, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			badRequest(c, "unreadable body")
			return
		}
		if !verifySignature(secret, body, c.GetHeader("X-Webhook-Signature")) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid signature"})
			return
		}

		var req PaymentWebhookRequest
		if err := json.Unmarshal(body, &req); err != nil {
			badRequest(c, "malformed event payload")
			return
		}

		status := domain.TipStatus(req.Status)
		switch status {
		case domain.TipProcessing, domain.TipSucceeded, domain.TipFailed:
		default:
			badRequest(c, "unknown payment status")
			return
		}

		tip, err := svcs.Fees.ApplyPaymentUpdate(c.Request.Context(), req.ProviderRef, status)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toTipResponse(tip))
	}
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// verifySignature checks the provider's hex HMAC-SHA256 over the raw body.
func verifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// tours service
	case errors.Is(err, tours.ErrTourNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "tour not found"})
		return
	case errors.Is(err, tours.ErrAlreadyActive):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "guide already has an active tour"})
		return
	case errors.Is(err, tours.ErrInvalidStatus):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "transition not allowed"})
		return
	case errors.Is(err, tours.ErrCodeExhausted):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "could not allocate join code"})
		return
	// participants service
	case errors.Is(err, participants.ErrTourNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "tour not found"})
		return
	case errors.Is(err, participants.ErrTourNotJoinable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "tour can no longer be joined"})
		return
	case errors.Is(err, participants.ErrParticipantNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "participant not found"})
		return
	case errors.Is(err, participants.ErrInvalidRating):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "rating must be between 1 and 5"})
		return
	case errors.Is(err, participants.ErrRatingNotOpen):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "tour is not rateable yet"})
		return
	// fees service
	case errors.Is(err, fees.ErrAmountOutOfRange):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "amount out of range"})
		return
	case errors.Is(err, fees.ErrUnsupportedCurrency):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unsupported currency"})
		return
	case errors.Is(err, fees.ErrTourNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "tour not found"})
		return
	case errors.Is(err, fees.ErrTipConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "tip conflict"})
		return
	// tokens service
	case errors.Is(err, tokens.ErrTourNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "tour not found"})
		return
	case errors.Is(err, tokens.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not allowed to access this room"})
		return
	case errors.Is(err, tokens.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "role must be guide or guest"})
		return
	case errors.Is(err, tokens.ErrMissingDeviceID):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "guest token requires a device_id"})
		return
	case errors.Is(err, tokens.ErrInvalidSession):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid session token"})
		return
	// webhooks service
	case errors.Is(err, webhooks.ErrMalformedRoom):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "room name does not match tour-{id}"})
		return
	case errors.Is(err, webhooks.ErrMalformedIdentity):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "participant identity is unparseable"})
		return
	case errors.Is(err, webhooks.ErrMissingParticipant):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "participant event without identity"})
		return
	case errors.Is(err, webhooks.ErrTourNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "tour not found"})
		return
	// repository (uncaught)
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
