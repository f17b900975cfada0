package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/mrusso/whatsapp-relay/internal/models"
	"github.com/mrusso/whatsapp-relay/internal/service"
)

// mediaURLPattern extracts message and media sids out of a classic MMS
// media URL.
var mediaURLPattern = regexp.MustCompile(`(?i)/Messages/([^/]+)/Media/([^/.]+)`)

// conversationMediaItem is one attachment entry in the Conversations API
// webhook Media field.
type conversationMediaItem struct {
	Sid         string `json:"Sid"`
	Filename    string `json:"Filename"`
	ContentType string `json:"ContentType"`
	Size        int64  `json:"Size"`
}

// Webhook ingests one inbound provider event. Twilio posts
// form-encoded payloads; Conversations API events arrive with
// EventType=onMessageAdded and a JSON media list, classic messages with
// NumMedia/MediaUrlN pairs.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidPayload, "Malformed form payload")
		return
	}

	in := parseInbound(r.PostForm)

	err := h.service.Message.Ingest(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingSender):
			h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidPayload, errorMessageMissingSender)
		case errors.Is(err, service.ErrEmptyMessage):
			h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidPayload, errorMessageEmptyMessage)
		default:
			h.logError(r, "Failed to ingest inbound message", err)
			h.sendError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store inbound message")
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

func parseInbound(form url.Values) models.InboundMessage {
	eventType := firstOf(form, "EventType", "eventType")
	from := firstOf(form, "From", "from", "Author")
	body := firstOf(form, "Body", "body")
	inboundSid := firstOf(form, "MessageSid", "SmsSid", "SmsMessageSid")
	serviceSid := firstOf(form, "ChatServiceSid", "MessagingServiceSid")
	conversationSid := form.Get("ConversationSid")

	in := models.InboundMessage{
		From:      from,
		To:        firstOf(form, "To", "to", "Recipient", "ChannelToAddress"),
		Body:      body,
		SID:       inboundSid,
		EventType: eventType,
	}

	if eventType == "onMessageAdded" {
		if author := form.Get("Author"); author != "" {
			in.From = author
		}
		in.Media = parseConversationMedia(form.Get("Media"), serviceSid, conversationSid)
		return in
	}

	numMedia, _ := strconv.Atoi(form.Get("NumMedia"))
	for i := 0; i < numMedia; i++ {
		mediaURL := form.Get(fmt.Sprintf("MediaUrl%d", i))
		if mediaURL == "" {
			continue
		}

		messageSid, mediaSid := extractMediaInfo(mediaURL)
		if messageSid == "" {
			messageSid = inboundSid
		}

		media := models.Media{
			SID:         mediaSid,
			MessageSID:  messageSid,
			OriginalURL: mediaURL,
			ProxyURL:    mediaURL,
			ContentType: form.Get(fmt.Sprintf("MediaContentType%d", i)),
			Type:        "message",
		}
		if mediaSid != "" && messageSid != "" {
			media.ProxyURL = fmt.Sprintf("/media/messages/%s/%s", messageSid, mediaSid)
		}
		in.Media = append(in.Media, media)
	}
	return in
}

func parseConversationMedia(payload, serviceSid, conversationSid string) []models.Media {
	if payload == "" {
		return nil
	}

	var items []conversationMediaItem
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil
	}

	media := make([]models.Media, 0, len(items))
	for _, item := range items {
		m := models.Media{
			SID:             item.Sid,
			Filename:        item.Filename,
			ContentType:     item.ContentType,
			Size:            item.Size,
			ServiceSID:      serviceSid,
			ConversationSID: conversationSid,
			Type:            "conversation",
		}
		if item.Sid != "" && serviceSid != "" {
			m.ProxyURL = fmt.Sprintf("/media/conversations/%s/%s", serviceSid, item.Sid)
		}
		media = append(media, m)
	}
	return media
}

func extractMediaInfo(mediaURL string) (messageSid, mediaSid string) {
	parsed, err := url.Parse(mediaURL)
	if err != nil {
		return "", ""
	}
	match := mediaURLPattern.FindStringSubmatch(parsed.Path)
	if match == nil {
		return "", ""
	}
	return match[1], match[2]
}

func firstOf(form url.Values, keys ...string) string {
	for _, key := range keys {
		if v := form.Get(key); v != "" {
			return v
		}
	}
	return ""
}
