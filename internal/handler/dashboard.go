package handlers

import (
	"crypto/subtle"
	"net/http"

	"Raksha/pkg/errors"
	"Raksha/pkg/logger"
	"Raksha/pkg/response"
	"Raksha/pkg/websocket"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sessionName     = "raksha_dashboard"
	sessionGuardian = "guardian"
	guardianKey     = "guardian"
)

type loginRequest struct {
	User     string `json:"user" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

func (h *Handlers) handleDashboardLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}
	if msg := validateStruct(&req); msg != "" {
		response.Fail(c, msg, nil)
		return
	}
	if h.Dashboard.Password == "" ||
		subtle.ConstantTimeCompare([]byte(req.User), []byte(h.Dashboard.User)) != 1 ||
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.Dashboard.Password)) != 1 {
		logger.Warn("dashboard login rejected", zap.String("user", req.User), zap.String("ip", c.ClientIP()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Body{Code: http.StatusUnauthorized, Msg: "invalid credentials"})
		return
	}
	s := sessions.Default(c)
	s.Set(sessionGuardian, req.User)
	if err := s.Save(); err != nil {
		response.Error(c, errors.Wrap(err, "save session"))
		return
	}
	logger.Info("guardian signed in", zap.String("user", req.User))
	response.Success(c, "signed in", gin.H{"user": req.User})
}

func (h *Handlers) handleDashboardLogout(c *gin.Context) {
	s := sessions.Default(c)
	s.Clear()
	_ = s.Save()
	response.Success(c, "signed out", nil)
}

// GuardianRequired admits requests carrying a dashboard session.
func (h *Handlers) GuardianRequired(c *gin.Context) {
	user, _ := sessions.Default(c).Get(sessionGuardian).(string)
	if user == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Body{Code: http.StatusUnauthorized, Msg: "sign in required"})
		return
	}
	c.Set(guardianKey, user)
	c.Next()
}

func (h *Handlers) handleDashboardEvents(c *gin.Context) {
	if h.Events == nil {
		response.Fail(c, "event stream not enabled", nil)
		return
	}
	clientID := c.GetString(guardianKey) + ":" + c.DefaultQuery("client", uuid.NewString())
	h.Events.Serve(c, clientID)
}

// handleGuardianResolve sends the resolve through the alert room so the
// device hears it on its livestream channel. When no publisher is in the
// room the core is resolved directly.
func (h *Handlers) handleGuardianResolve(c *gin.Context) {
	alertID := c.Param("id")
	by := "guardian:" + c.GetString(guardianKey)

	if h.Relay != nil {
		reached, err := h.Relay.Notify(alertID, websocket.Signal{Kind: websocket.KindResolved, AlertID: alertID, By: by})
		if err != nil {
			response.Error(c, err)
			return
		}
		if reached > 0 {
			response.Success(c, "resolve forwarded", gin.H{"forwarded": true})
			return
		}
	}
	resolved, err := h.Emergency.ResolveAlert(c.Request.Context(), alertID, by)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !resolved {
		c.AbortWithStatusJSON(http.StatusConflict, response.Body{Code: http.StatusConflict, Msg: "alert is not active"})
		return
	}
	response.Success(c, "alert resolved", gin.H{"forwarded": false, "resolved": true})
}

// authorizeStream admits relay connections. Publishers and viewers present
// a signed token; guardians may instead use their dashboard session.
func (h *Handlers) authorizeStream(c *gin.Context, alertID string, role websocket.Role) (string, error) {
	if role == websocket.RoleGuardian {
		if user, _ := sessions.Default(c).Get(sessionGuardian).(string); user != "" {
			return "guardian:" + user, nil
		}
	}
	if h.Links == nil {
		return "", errors.New(errors.KindPermissionDenied, "stream tokens not configured")
	}
	if err := h.Links.Authorize(c.Query("token"), alertID, role); err != nil {
		return "", err
	}
	return string(role), nil
}

func (h *Handlers) handleWatch(c *gin.Context) {
	if h.Links == nil {
		c.String(http.StatusNotFound, "livestream disabled")
		return
	}
	token := c.Param("token")
	claims, err := h.Links.Verify(token)
	if err != nil {
		c.String(http.StatusForbidden, "this link has expired or is invalid")
		return
	}
	c.HTML(http.StatusOK, "watch", gin.H{
		"AlertID": claims.Subject,
		"Token":   token,
	})
}

const watchPage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Raksha live</title>
<meta name="viewport" content="width=device-width, initial-scale=1"></head>
<body>
<h1>Live emergency stream</h1>
<p id="status">Connecting…</p>
<p>Viewers: <span id="viewers">0</span></p>
<video id="video" autoplay playsinline controls></video>
<script>
const alertID = {{.AlertID}};
const token = {{.Token}};
const proto = location.protocol === "https:" ? "wss://" : "ws://";
const ws = new WebSocket(proto + location.host + "/ws/stream/" + encodeURIComponent(alertID) + "?role=viewer&token=" + encodeURIComponent(token));
ws.binaryType = "arraybuffer";
const media = new MediaSource();
document.getElementById("video").src = URL.createObjectURL(media);
let buf, queue = [];
media.addEventListener("sourceopen", () => {
  buf = media.addSourceBuffer('video/webm; codecs="vp8,opus"');
  buf.addEventListener("updateend", () => { if (queue.length) buf.appendBuffer(queue.shift()); });
});
ws.onopen = () => { document.getElementById("status").textContent = "Live"; };
ws.onclose = () => { document.getElementById("status").textContent = "Stream ended"; };
ws.onmessage = (ev) => {
  if (typeof ev.data === "string") {
    const sig = JSON.parse(ev.data);
    if (sig.kind === "viewerCount") document.getElementById("viewers").textContent = sig.count;
    if (sig.kind === "resolved") document.getElementById("status").textContent = "Resolved, marked safe";
    return;
  }
  if (!buf || buf.updating || queue.length) { queue.push(ev.data); return; }
  buf.appendBuffer(ev.data);
};
</script>
</body>
</html>`
