package handlers

import (
	"net/http"
	"time"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/repository"
	"example.com/backstage/dairy/internal/session"
	"example.com/backstage/dairy/internal/tracing"

	"github.com/gin-gonic/gin"
)

// SessionHandler signs sellers, agents and customers in. The gateway keeps
// no session: the response carries what the caller sends back later.
type SessionHandler struct {
	client backend.Client
	auth   backend.Authenticator
	tracer tracing.Tracer
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(client backend.Client, auth backend.Authenticator, tracer tracing.Tracer) *SessionHandler {
	return &SessionHandler{client: client, auth: auth, tracer: tracer}
}

// SellerSignInRequest is an email/password sign-in
type SellerSignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AgentLoginRequest identifies a delivery agent
type AgentLoginRequest struct {
	LoginID string `json:"login_id" binding:"required"`
	Phone   string `json:"phone" binding:"required"`
}

// CustomerLoginRequest identifies a customer
type CustomerLoginRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required"`
}

func (h *SessionHandler) session() *session.Session {
	return session.New(h.client, h.auth, &session.MemoryStore{})
}

// HandleSellerSignIn returns the seller identity with its access token
func (h *SessionHandler) HandleSellerSignIn(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-seller-sign-in")
	defer h.tracer.EndTransaction(txn)

	var req SellerSignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, NewValidationError(err.Error()))
		return
	}

	identity, err := h.session().SignInSeller(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, identity)
}

// HandleAgentLogin returns the delivery agent identity
func (h *SessionHandler) HandleAgentLogin(c *gin.Context) {
	var req AgentLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, NewValidationError(err.Error()))
		return
	}

	identity, err := h.session().LoginAgent(c.Request.Context(), req.LoginID, req.Phone)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, identity)
}

// HandleCustomerLogin returns the customer identity
func (h *SessionHandler) HandleCustomerLogin(c *gin.Context) {
	var req CustomerLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, NewValidationError(err.Error()))
		return
	}

	identity, err := h.session().LoginCustomer(c.Request.Context(), req.Name, req.Phone)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, identity)
}

// HandleSignOut revokes the bearer token
func (h *SessionHandler) HandleSignOut(c *gin.Context) {
	token := bearerToken(c)
	if token == "" || h.auth == nil {
		c.Status(http.StatusNoContent)
		return
	}
	if err := h.auth.SignOut(c.Request.Context(), token); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleMe returns the seller account behind the bearer token
func (h *SessionHandler) HandleMe(c *gin.Context) {
	identity, err := session.FromToken(bearerToken(c), time.Now())
	if err != nil {
		writeError(c, err)
		return
	}

	client := backend.Scoped(h.client, identity.AccessToken)
	account, err := repository.NewProfileRepository(client).Account(c.Request.Context(), identity.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id": identity.UserID,
		"account": account,
	})
}

// RegisterRoutes registers the handler's routes
func (h *SessionHandler) RegisterRoutes(router gin.IRouter) {
	router.POST("/session/seller", h.HandleSellerSignIn)
	router.POST("/session/agent", h.HandleAgentLogin)
	router.POST("/session/customer", h.HandleCustomerLogin)
	router.DELETE("/session", h.HandleSignOut)
	router.GET("/me", h.HandleMe)
}
