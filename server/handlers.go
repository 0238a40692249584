package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/parley-ml/parley/conversation"
	"github.com/parley-ml/parley/executor"
)

// AppendRequest queues tokens onto a conversation.
type AppendRequest struct {
	Tokens []int `json:"tokens" binding:"required"`
}

// AppendResponse reports the conversation state after an append.
type AppendResponse struct {
	TokenCount int `json:"token_count"`
}

// InferRequest controls how much of the batch queue one call drains.
type InferRequest struct {
	DrainAll bool `json:"drain_all"`
}

// LogitsResponse carries the consumed logit vector.
type LogitsResponse struct {
	Logits []float32 `json:"logits"`
}

// StatsResponse is a point-in-time snapshot for capacity planning.
type StatsResponse struct {
	Epoch         uint64 `json:"epoch"`
	PendingTokens int    `json:"pending_tokens"`
	Conversations int    `json:"conversations"`
	CellsUsed     int    `json:"cells_used"`
	ContextLength int    `json:"context_length"`
	Decodes       uint64 `json:"decodes"`
}

func (s *Server) lookup(id string) (*conversation.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[id]
	return conv, ok
}

// CreateHandler starts a new conversation and returns its id.
func (s *Server) CreateHandler(c *gin.Context) {
	conv, err := conversation.New(s.exec)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.convs[id] = conv
	s.mu.Unlock()

	slog.Debug("conversation created", "id", id, "seq", conv.SeqID())
	c.JSON(http.StatusCreated, gin.H{"id": id, "seq": conv.SeqID()})
}

// DropHandler closes a conversation and releases its cache range.
func (s *Server) DropHandler(c *gin.Context) {
	id := c.Param("id")

	s.mu.Lock()
	conv, ok := s.convs[id]
	delete(s.convs, id)
	s.mu.Unlock()

	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	if err := conv.Close(c.Request.Context()); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusOK)
}

// ForkHandler branches a conversation and returns the child's id.
func (s *Server) ForkHandler(c *gin.Context) {
	conv, ok := s.lookup(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	child, err := conv.Fork(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.convs[id] = child
	s.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{"id": id, "seq": child.SeqID()})
}

// AppendHandler queues tokens for the next inference pass.
func (s *Server) AppendHandler(c *gin.Context) {
	conv, ok := s.lookup(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	var req AppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Tokens) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no tokens provided"})
		return
	}

	if err := conv.Append(req.Tokens...); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, AppendResponse{TokenCount: conv.TokenCount()})
}

// LogitsHandler consumes the pending logits of a conversation. Responds
// 409 while the owning batch has not been drained yet.
func (s *Server) LogitsHandler(c *gin.Context) {
	conv, ok := s.lookup(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	logits, err := conv.Logits()
	switch {
	case errors.Is(err, conversation.ErrNotReady):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, conversation.ErrNothingPending):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, LogitsResponse{Logits: logits})
}

// InferHandler drains the batch queue through the engine. A full engine
// cache responds 503; the failed batch stays queued for retry once the
// client has dropped a conversation.
func (s *Server) InferHandler(c *gin.Context) {
	var req InferRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := s.exec.Infer(c.Request.Context(), req.DrainAll); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, executor.ErrNoSlot) {
			status = http.StatusServiceUnavailable
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"epoch": s.exec.Epoch()})
}

// StatsHandler reports queue, epoch and engine occupancy.
func (s *Server) StatsHandler(c *gin.Context) {
	s.mu.RLock()
	convs := len(s.convs)
	s.mu.RUnlock()

	c.JSON(http.StatusOK, StatsResponse{
		Epoch:         s.exec.Epoch(),
		PendingTokens: s.exec.PendingTokens(),
		Conversations: convs,
		CellsUsed:     s.eng.CellsUsed(),
		ContextLength: s.eng.ContextLength(),
		Decodes:       s.eng.Decodes(),
	})
}
