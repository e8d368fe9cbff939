package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blinktext/internal/middleware"
	"github.com/blinktext/internal/models"
	"github.com/blinktext/internal/text"
)

var kindStatus = map[text.Kind]int{
	text.KindValidation:      http.StatusBadRequest,
	text.KindNotFound:        http.StatusNotFound,
	text.KindAuthRequired:    http.StatusUnauthorized,
	text.KindAuthFailed:      http.StatusUnauthorized,
	text.KindOwnershipDenied: http.StatusNotFound,
	text.KindInternal:        http.StatusInternalServerError,
}

// respondTextError maps a text service error onto the HTTP status table.
func respondTextError(c *gin.Context, logger logrus.FieldLogger, err error) {
	kind := text.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.FullPath()).Error("text request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	if kind == text.KindOwnershipDenied {
		err = text.ErrNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func handleCreateText(texts *text.Service, publicURL string, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CreateTextRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		var ownerID *uuid.UUID
		if id, ok := middleware.UserID(c); ok {
			ownerID = &id
		}

		record, err := texts.Create(c.Request.Context(), req, ownerID)
		if err != nil {
			respondTextError(c, logger, err)
			return
		}

		c.JSON(http.StatusCreated, models.CreateTextResponse{
			ID:          record.ID,
			AccessToken: record.AccessToken,
			ExpiresAt:   record.ExpiresAt,
			ShareURL:    shareURL(c, publicURL, record.AccessToken),
			IsMarkdown:  record.IsMarkdown,
		})
	}
}

// shareURL prefers the configured public URL and otherwise uses the request's own origin.
func shareURL(c *gin.Context, publicURL, accessToken string) string {
	base := strings.TrimRight(publicURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + "/view/" + accessToken
}

func handleReadText(texts *text.Service, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := texts.Read(c.Request.Context(), c.Param("accessToken"), c.GetHeader("X-Password"))
		if err != nil {
			respondTextError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func handleTextHistory(texts *text.Service, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(text.DefaultPageSize)))

		resp, err := texts.ListByOwner(c.Request.Context(), userID, page, limit)
		if err != nil {
			respondTextError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func handleDeleteText(texts *text.Service, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		if err := texts.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
			respondTextError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "text deleted"})
	}
}

func handleClearExpired(texts *text.Service, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := texts.PurgeExpired(c.Request.Context(), texts.Now())
		if err != nil {
			respondTextError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"deleted": deleted})
	}
}
