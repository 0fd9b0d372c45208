package handlers

import (
	"strings"
	"time"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/models"
	"example.com/backstage/dairy/internal/services"

	"github.com/gin-gonic/gin"
)

// Scope builds the services of one request. Calls act as the holder of
// the request's bearer token, or anonymously without one.
type Scope struct {
	Client backend.Client
	Deps   services.Deps
}

func (s Scope) services(c *gin.Context) *services.Services {
	return services.New(backend.Scoped(s.Client, bearerToken(c)), s.Deps)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// dateQuery parses an optional YYYY-MM-DD query parameter
func dateQuery(c *gin.Context, name string) (*time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	t, err := models.ParseDate(v)
	if err != nil {
		return nil, NewValidationError(name + " must be a YYYY-MM-DD date")
	}
	return &t, nil
}

func assignmentQuery(c *gin.Context) (services.AssignmentQuery, error) {
	from, err := dateQuery(c, "from")
	if err != nil {
		return services.AssignmentQuery{}, err
	}
	to, err := dateQuery(c, "to")
	if err != nil {
		return services.AssignmentQuery{}, err
	}
	return services.AssignmentQuery{From: from, To: to, AgentID: c.Query("agent_id")}, nil
}
