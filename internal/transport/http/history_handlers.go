package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/relaychat/relay-server/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// HistoryHandlers provides HTTP handlers for message history endpoints.
type HistoryHandlers struct {
	store store.MessageStore
	log   *zerolog.Logger
}

// NewHistoryHandlers creates a new history handlers instance.
func NewHistoryHandlers(st store.MessageStore, logger *zerolog.Logger) *HistoryHandlers {
	return &HistoryHandlers{store: st, log: logger}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse represents a stored message in API responses.
type MessageResponse struct {
	ID          int64    `json:"id"`
	Room        string   `json:"room"`
	User        string   `json:"user"`
	Text        string   `json:"text"`
	ContentType string   `json:"content_type"`
	TS          int64    `json:"ts"`
	ReadBy      []string `json:"read_by"`
}

// HistoryResponse is one page of a room's history, oldest first.
type HistoryResponse struct {
	Room       string            `json:"room"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	Total      int               `json:"total"`
	TotalPages int               `json:"total_pages"`
	Messages   []MessageResponse `json:"messages"`
}

// RoomsResponse lists the room names known to the message store.
type RoomsResponse struct {
	Rooms []string `json:"rooms"`
}

// ListRooms handles room listing.
// GET /api/rooms
func (h *HistoryHandlers) ListRooms(c *gin.Context) {
	rooms, err := h.store.ListRooms(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, RoomsResponse{Rooms: rooms})
}

// RoomMessages handles paginated history retrieval. Pages count back
// from the newest message; each page is returned oldest first.
// GET /api/rooms/:room/messages?page=1&page_size=50
func (h *HistoryHandlers) RoomMessages(c *gin.Context) {
	room := c.Param("room")
	if room == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "room is required"})
		return
	}

	page, err := positiveQueryInt(c, "page", 1)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
		return
	}
	pageSize, err := positiveQueryInt(c, "page_size", defaultPageSize)
	if err != nil || pageSize > maxPageSize {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page_size"})
		return
	}

	msgs, total, err := h.store.History(c.Request.Context(), room, page, pageSize)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	// The store pages newest-first; clients render oldest-first.
	messages := make([]MessageResponse, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		messages = append(messages, MessageResponse{
			ID:          m.ID,
			Room:        m.Room,
			User:        m.From,
			Text:        m.Body,
			ContentType: string(m.ContentType),
			TS:          m.CreatedAt.Unix(),
			ReadBy:      m.ReadBy,
		})
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Room:       room,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		Messages:   messages,
	})
}

func positiveQueryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
