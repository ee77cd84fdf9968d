package proposal

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/agentos/agentos/internal/agentauth"
	"github.com/agentos/agentos/internal/agents"
	"github.com/agentos/agentos/internal/amount"
	"github.com/agentos/agentos/internal/authz"
	"github.com/agentos/agentos/internal/envelope"
	"github.com/agentos/agentos/internal/logging"
	"github.com/agentos/agentos/internal/policy"
	"github.com/agentos/agentos/internal/validation"
)

// Handler provides HTTP endpoints for transfer proposals.
type Handler struct {
	svc *Service
}

// NewHandler creates a proposal handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up proposal routes under the signed /api/agent group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transfers/propose", h.Propose)
	r.GET("/transfers/:id", h.Get)
	r.POST("/transfers/:id/approve", h.action(ActionApprove))
	r.POST("/transfers/:id/reject", h.action(ActionReject))
	r.POST("/transfers/:id/execute", h.action(ActionExecute))
}

type proposeBody struct {
	WalletAddress string          `json:"wallet_address"`
	To            string          `json:"to"`
	Token         string          `json:"token"`
	Amount        string          `json:"amount"`
	Context       json.RawMessage `json:"context"`
}

// Propose handles POST /api/agent/transfers/propose
func (h *Handler) Propose(c *gin.Context) {
	var body proposeBody
	if err := decodeBody(c, &body); err != nil {
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "invalid JSON body")
		return
	}

	errs := validation.Check(
		validation.Required("wallet_address", body.WalletAddress),
		validation.Required("to", body.To),
		validation.Required("token", body.Token),
		validation.Required("amount", body.Amount),
		validation.Address("wallet_address", body.WalletAddress),
		validation.Address("to", body.To),
		validation.Address("token", body.Token),
		validation.Decimal("amount", body.Amount),
	)
	ctxObj, err := decodeContext(body.Context)
	if err != nil {
		errs.Add("context", "must be a JSON object")
	}
	if len(errs) > 0 {
		envelope.FailDetails(c, http.StatusBadRequest, envelope.CodeValidation,
			"wallet_address, to, token (0x...) and amount (uint256 string) required", errs)
		return
	}

	amt, _ := amount.ParseUint256(body.Amount)
	res, err := h.svc.Propose(c.Request.Context(), agentauth.AddressFrom(c), ProposeRequest{
		WalletAddress: body.WalletAddress,
		To:            common.HexToAddress(body.To),
		Token:         common.HexToAddress(body.Token),
		Amount:        amt,
		Context:       ctxObj,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	envelope.OK(c, res)
}

// Get handles GET /api/agent/transfers/:id?wallet_address=
func (h *Handler) Get(c *gin.Context) {
	id, ok := proposalID(c)
	if !ok {
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "proposal id must be a decimal integer")
		return
	}
	walletAddr := strings.TrimSpace(c.Query("wallet_address"))
	if !validation.IsAddress(walletAddr) {
		envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "wallet_address (0x...) required")
		return
	}
	p, err := h.svc.Get(c.Request.Context(), agentauth.AddressFrom(c), walletAddr, id)
	if err != nil {
		writeError(c, err)
		return
	}
	envelope.OK(c, p)
}

func proposalID(c *gin.Context) (*big.Int, bool) {
	raw := c.Param("id")
	if !validation.IsDecimal(raw) {
		return nil, false
	}
	id, _ := amount.ParseUint256(raw)
	return id, true
}

type actionBody struct {
	WalletAddress string `json:"wallet_address"`
}

func (h *Handler) action(action Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := proposalID(c)
		if !ok {
			envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "proposal id must be a decimal integer")
			return
		}
		var body actionBody
		if err := decodeBody(c, &body); err != nil {
			envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "invalid JSON body")
			return
		}
		if !validation.IsAddress(strings.TrimSpace(body.WalletAddress)) {
			envelope.Fail(c, http.StatusBadRequest, envelope.CodeValidation, "wallet_address (0x...) required")
			return
		}
		res, err := h.svc.Act(c.Request.Context(), agentauth.AddressFrom(c), strings.TrimSpace(body.WalletAddress), id, action)
		if err != nil {
			writeError(c, err)
			return
		}
		envelope.OK(c, res)
	}
}

// decodeBody reads a JSON object body. Numbers keep their original text.
func decodeBody(c *gin.Context, v interface{}) error {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// decodeContext accepts a JSON object, null or nothing.
func decodeContext(raw json.RawMessage) (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '{' {
		return nil, errors.New("context must be an object")
	}
	var m map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func writeError(c *gin.Context, err error) {
	var (
		violation  *policy.Violation
		transition *TransitionError
		revert     *RevertError
	)
	switch {
	case errors.As(err, &violation):
		policy.WriteViolation(c, violation)
	case errors.As(err, &transition):
		envelope.FailDetails(c, http.StatusConflict, envelope.CodeConflict, transition.Error(),
			gin.H{"currentStatus": transition.From})
	case errors.As(err, &revert):
		envelope.FailDetails(c, http.StatusConflict, envelope.CodeConflict, "transaction reverted by wallet contract",
			gin.H{"txHash": revert.TxHash.Hex()})
	case errors.Is(err, ErrNotFound):
		envelope.Fail(c, http.StatusNotFound, envelope.CodeNotFound, "proposal not found")
	case errors.Is(err, authz.ErrForbidden):
		envelope.Fail(c, http.StatusForbidden, envelope.CodeForbidden, "signer does not hold the required wallet role")
	case errors.Is(err, policy.ErrSourceUnavailable):
		envelope.Fail(c, http.StatusServiceUnavailable, envelope.CodeChain, "chain temporarily unavailable")
	case errors.Is(err, ErrChain), errors.Is(err, ErrNoProposalID), errors.Is(err, policy.ErrRead):
		logging.L(c.Request.Context()).Error("proposal chain call failed", "error", err)
		envelope.Internal(c, envelope.CodeChain)
	default:
		// Everything else comes from the registry store.
		agents.WriteError(c, err)
	}
}
