package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/distribution"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/ledger"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/periods"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/settlement"
)

// Handler отвечает на запросы API.
type Handler struct {
	periods      *periods.Service
	ledger       *ledger.Service
	settlement   *settlement.Service
	distribution *distribution.Service
}

// NewHandler создаёт обработчик API.
func NewHandler(
	periodService *periods.Service,
	ledgerService *ledger.Service,
	settlementService *settlement.Service,
	distributionService *distribution.Service,
) *Handler {
	return &Handler{
		periods:      periodService,
		ledger:       ledgerService,
		settlement:   settlementService,
		distribution: distributionService,
	}
}

type listQuery struct {
	Limit int `form:"limit,default=20" binding:"min=1,max=100"`
}

// GetTracker — GET /api/tracker
func (h *Handler) GetTracker(c *gin.Context) {
	tr, err := h.periods.Tracker(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	current, err := h.periods.Current(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": trackerResponse{
		Tracker: *tr,
		Current: newPeriodResponse(current, h.periods.Now()),
	}})
}

// GetCurrentPeriod — GET /api/periods/current
func (h *Handler) GetCurrentPeriod(c *gin.Context) {
	p, err := h.periods.Current(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newPeriodResponse(p, h.periods.Now())})
}

// GetPeriod — GET /api/periods/:number
func (h *Handler) GetPeriod(c *gin.Context) {
	number, ok := periodParam(c)
	if !ok {
		return
	}
	p, err := h.periods.Get(c.Request.Context(), number)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newPeriodResponse(p, h.periods.Now())})
}

// GetPeriodContributions — GET /api/periods/:number/contributions
func (h *Handler) GetPeriodContributions(c *gin.Context) {
	number, ok := periodParam(c)
	if !ok {
		return
	}
	if _, err := h.periods.Get(c.Request.Context(), number); err != nil {
		respondError(c, err)
		return
	}
	list, err := h.ledger.ListByPeriod(c.Request.Context(), number)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newContributionResponses(list)})
}

// GetContributor — GET /api/contributors/:authority
func (h *Handler) GetContributor(c *gin.Context) {
	authority := c.Param("authority")
	contributor, err := h.ledger.Contributor(c.Request.Context(), authority)
	if err != nil {
		respondError(c, err)
		return
	}
	balance, err := h.settlement.Balance(c.Request.Context(), authority)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": contributorResponse{
		Contributor:  *contributor,
		NeverClaimed: contributor.LastClaimedPeriod == domain.NeverClaimed,
		Balance:      balance,
	}})
}

// GetContributorContributions — GET /api/contributors/:authority/contributions
func (h *Handler) GetContributorContributions(c *gin.Context) {
	list, err := h.ledger.ListByContributor(c.Request.Context(), c.Param("authority"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newContributionResponses(list)})
}

// GetContributorSettlements — GET /api/contributors/:authority/settlements?limit=
func (h *Handler) GetContributorSettlements(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": formatValidationError(err)})
		return
	}
	history, err := h.settlement.History(c.Request.Context(), c.Param("authority"), q.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": history})
}

// GetPreview — GET /api/contributors/:authority/preview/:number
func (h *Handler) GetPreview(c *gin.Context) {
	number, ok := periodParam(c)
	if !ok {
		return
	}
	reward, err := h.distribution.Preview(c.Request.Context(), c.Param("authority"), number)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"period": number, "reward": reward}})
}

func periodParam(c *gin.Context) (uint64, bool) {
	number, err := strconv.ParseUint(c.Param("number"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "номер периода должен быть неотрицательным целым"})
		return 0, false
	}
	return number, true
}

// respondError переводит доменную ошибку в HTTP-статус.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("Ошибка API")
	}
	c.JSON(status, gin.H{
		"error":    common.UserMessage(err),
		"category": common.Classify(err),
	})
}

var notFound = []error{
	common.ErrTrackerNotInitialized,
	common.ErrPeriodDoesNotExist,
	common.ErrContributorNotInitialized,
	common.ErrContributionNotFound,
}

func statusFor(err error) int {
	for _, target := range notFound {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	switch common.Classify(err) {
	case common.CategoryValidation:
		return http.StatusBadRequest
	case common.CategoryState:
		return http.StatusConflict
	case common.CategoryArithmetic:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "некорректные параметры запроса"
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "min":
			messages = append(messages, fmt.Sprintf("%s: минимум %s", field, fe.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s: максимум %s", field, fe.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s: некорректное значение", field))
		}
	}
	return strings.Join(messages, "; ")
}
