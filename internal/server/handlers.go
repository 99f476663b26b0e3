package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/rateroom/internal/errors"
)

type createRoomRequest struct {
	ClientID string `json:"clientId"`
}

type createRoomResponse struct {
	RoomID string `json:"roomId"`
	Token  string `json:"token"`
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.ClientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Client ID is required"})
		return
	}

	r, err := s.service.room.CreateRoom(c.Request.Context(), req.ClientID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	token, err := s.service.auth.Issue(req.ClientID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, createRoomResponse{RoomID: r.RoomID, Token: token})
}

func (s *Server) handleIsHost(c *gin.Context) {
	isHost, err := s.service.room.IsHost(c.Request.Context(), c.Param("roomId"), c.Param("clientId"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"isHost": isHost})
}

func (s *Server) writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "http: internal error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(e.HTTPStatusCode(), gin.H{"error": e.Message})
}
