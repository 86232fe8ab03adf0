package engine

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vorpalengineering/paylink-go/encode"
	"github.com/vorpalengineering/paylink-go/rail"
	"github.com/vorpalengineering/paylink-go/store"
	"github.com/vorpalengineering/paylink-go/types"
)

func (e *Engine) handleCreate(ctx *gin.Context) {
	// Decode request
	var req types.CreateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	created, err := e.CreateRequest(ctx.Request.Context(), req)
	if err != nil {
		e.writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, created)
}

func (e *Engine) handleGet(ctx *gin.Context) {
	req, err := e.store.Get(ctx.Param("reference"))
	if err != nil {
		e.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, req)
}

func (e *Engine) handleList(ctx *gin.Context) {
	reqs, err := e.store.List(ctx.Query("merchantId"), types.Status(ctx.Query("status")), 100)
	if err != nil {
		e.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// handlePay resolves the shareable link: the record plus the encoder
// fan-out in one response. Terminal and superseded records still resolve so
// a stale link can follow supersededBy to the live request.
func (e *Engine) handlePay(ctx *gin.Context) {
	req, err := e.store.Get(ctx.Param("reference"))
	if err != nil {
		e.writeError(ctx, err)
		return
	}

	view := types.PayView{Request: req}
	if link, err := encode.ToShareableLink(req); err == nil {
		view.ShareableLink = link
	}

	// Only a payable request gets a deep link.
	if req.Status == types.StatusPending {
		if deepLink, err := encode.ToDeepLink(req, e.ledger.TokenID()); err == nil {
			view.DeepLink = deepLink
			view.DeepLinkURI = encode.DeepLinkURI(deepLink, e.config.Requests.ChainScheme)
		}
	}

	ctx.JSON(http.StatusOK, view)
}

func (e *Engine) handleRegenerate(ctx *gin.Context) {
	successor, err := e.Regenerate(ctx.Request.Context(), ctx.Param("reference"))
	if err != nil {
		e.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, successor)
}

func (e *Engine) handleVerify(ctx *gin.Context) {
	// Decode request
	var req types.VerifyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	result, err := e.VerifySettlement(ctx.Request.Context(), ctx.Param("reference"), req.TransactionID)
	if err != nil {
		e.writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func (e *Engine) handleGate(ctx *gin.Context) {
	payer := ctx.Query("payer")
	if payer == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": "payer query parameter is required",
		})
		return
	}

	result, err := e.EvaluateGate(ctx.Request.Context(), ctx.Param("reference"), payer)
	if err != nil {
		e.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

func (e *Engine) handleTopUp(ctx *gin.Context) {
	// Decode request
	var req types.TopUpRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	handle, err := e.RequestTopUp(ctx.Request.Context(), req.PayerAddress, req.MinAmountToken)
	if err != nil {
		e.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, handle)
}

func (e *Engine) handleTopUpCallback(ctx *gin.Context) {
	// Decode request
	var cb types.TopUpCallback
	if err := ctx.ShouldBindJSON(&cb); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	gate, err := e.CompleteTopUp(ctx.Request.Context(), ctx.Param("id"), cb)
	if err != nil {
		e.writeError(ctx, err)
		return
	}
	if gate == nil {
		ctx.JSON(http.StatusOK, gin.H{"acknowledged": true})
		return
	}
	ctx.JSON(http.StatusOK, gate)
}

// handleWatch upgrades to a WebSocket and streams state transitions for one
// reference. The current snapshot is sent immediately so a client that
// connects after a transition still converges.
func (e *Engine) handleWatch(ctx *gin.Context) {
	reference := ctx.Param("reference")

	req, err := e.store.Get(reference)
	if err != nil {
		e.writeError(ctx, err)
		return
	}

	conn, err := e.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	// All writes to the connection go through the hub's per-subscriber
	// writer, the snapshot included; writing here directly would race the
	// event pusher.
	e.hub.Subscribe(reference, conn)
	e.hub.Send(reference, conn, gin.H{"reference": reference, "status": req.Status, "request": req})

	// Drain reads until the client goes away, then drop the subscription.
	go func() {
		defer func() {
			e.hub.Unsubscribe(reference, conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writeError maps the engine's error taxonomy onto HTTP statuses. 502 is
// reserved for the upstream collaborators (rate source, ledger, rail);
// anything unrecognized is a genuine internal fault and stays 500.
func (e *Engine) writeError(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrMissingField):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotExpired), errors.Is(err, store.ErrIllegalTransition):
		status = http.StatusConflict
	case errors.Is(err, ErrRateUnavailable), errors.Is(err, ErrLedgerUnavailable), errors.Is(err, rail.ErrRailUnavailable):
		status = http.StatusBadGateway
	default:
		e.logger.WithError(err).Error("request failed")
	}

	ctx.JSON(status, gin.H{"error": err.Error()})
}
