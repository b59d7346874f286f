package messaging

// SendSMSRequest is the body of POST /sms/send
type SendSMSRequest struct {
	Phone    string `json:"phone" validate:"required,phone"`
	Message  string `json:"message" validate:"required,max=1600"`
	SenderID string `json:"sender_id" validate:"max=11"`
}

// BulkSMSRequest is the body of POST /sms/bulk
type BulkSMSRequest struct {
	Phones   []string `json:"phones" validate:"required,min=1,max=1000,dive,phone"`
	Message  string   `json:"message" validate:"required,max=1600"`
	SenderID string   `json:"sender_id" validate:"max=11"`
}

// SendEmailRequest is the body of POST /email/send
type SendEmailRequest struct {
	Recipient string `json:"recipient" validate:"required,email"`
	Subject   string `json:"subject" validate:"required,max=255"`
	Message   string `json:"message" validate:"required"`
}

// MessageResponse is one message in API responses
type MessageResponse struct {
	ID         string `json:"id"`
	BatchID    string `json:"batch_id,omitempty"`
	Channel    string `json:"channel"`
	Recipient  string `json:"recipient"`
	SenderID   string `json:"sender_id,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Message    string `json:"message"`
	Credits    int64  `json:"credits"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// ToResponse maps a message row to its API shape
func ToResponse(m *Message) MessageResponse {
	resp := MessageResponse{
		ID:         m.ID.String(),
		Channel:    string(m.Channel),
		Recipient:  m.Recipient,
		SenderID:   m.SenderID.String,
		Subject:    m.Subject.String,
		Message:    m.Body,
		Credits:    m.Credits,
		Status:     string(m.Status),
		FailReason: m.FailReason.String,
		Timestamp:  m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if m.BatchID.Valid {
		resp.BatchID = m.BatchID.UUID.String()
	}
	return resp
}
