package controller

import (
	"context"
	"net/http"
	"time"

	"codejudge/internal/common/http/middleware"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Stream frame types.
const (
	FrameResult  = "result"
	FrameVerdict = "verdict"
	FrameError   = "error"
)

const (
	writeWait   = 10 * time.Second
	requestWait = 30 * time.Second
)

// StreamFrame is one websocket message sent to the client.
type StreamFrame struct {
	Type    string                   `json:"type"`
	Index   int                      `json:"index"`
	Result  *model.TestCaseResultDTO `json:"result,omitempty"`
	Verdict *model.VerdictResponse   `json:"verdict,omitempty"`
	Code    int                      `json:"code,omitempty"`
	Message string                   `json:"message,omitempty"`
}

// Stream upgrades to a websocket, reads one submission and pushes each test
// case result as it finishes, then the verdict.
func (h *JudgeController) Stream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(requestWait))
	var req model.SubmissionRequest
	if err := conn.ReadJSON(&req); err != nil {
		writeFrame(conn, errorFrame(appErr.Wrapf(err, appErr.InvalidParams, "invalid submission frame")))
		return
	}
	sub, err := h.prepare(req)
	if err != nil {
		writeFrame(conn, errorFrame(err))
		return
	}

	// The hijacked connection no longer cancels the request context.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	_ = conn.SetReadDeadline(time.Time{})
	go watchClose(conn, cancel)

	verdict, err := h.evaluator.EvaluateStream(ctx, sub, func(index int, res model.TestCaseResult) {
		dto := model.ResultToDTO(res)
		writeFrame(conn, StreamFrame{Type: FrameResult, Index: index, Result: &dto})
	})
	if err != nil {
		writeFrame(conn, errorFrame(err))
		return
	}
	resp := verdict.ToResponse()
	writeFrame(conn, StreamFrame{Type: FrameVerdict, Verdict: &resp})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(writeWait))
}

// watchClose cancels the evaluation once the client goes away.
func watchClose(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *JudgeController) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	return middleware.OriginAllowed(r.Header.Get("Origin"), h.allowedOrigins)
}

// writeFrame ignores write errors; a gone client must not stop the evaluation.
func writeFrame(conn *websocket.Conn, frame StreamFrame) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(frame)
}

func errorFrame(err error) StreamFrame {
	e := appErr.GetError(err)
	return StreamFrame{Type: FrameError, Code: int(e.Code), Message: e.Error()}
}
