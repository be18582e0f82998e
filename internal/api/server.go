package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/DASSPipe/internal/flow"
	"github.com/BTreeMap/DASSPipe/internal/messaging"
	"github.com/BTreeMap/DASSPipe/internal/store"
)

// Server holds the modules the HTTP handlers work with.
type Server struct {
	msgService  messaging.Service
	st          store.Store
	assessments *flow.AssessmentFlow
	respHandler *messaging.ResponseHandler
}

// NewServer creates a Server over already constructed modules.
func NewServer(msgService messaging.Service, st store.Store, assessments *flow.AssessmentFlow, respHandler *messaging.ResponseHandler) *Server {
	return &Server{
		msgService:  msgService,
		st:          st,
		assessments: assessments,
		respHandler: respHandler,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /assessments", s.startAssessmentHandler)
	mux.HandleFunc("GET /assessments/{participant}", s.sessionHandler)
	mux.HandleFunc("POST /assessments/{participant}/answers", s.answerHandler)
	mux.HandleFunc("GET /receipts", s.receiptsHandler)
	mux.HandleFunc("GET /responses", s.responsesHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	if twilio, ok := s.msgService.(*messaging.TwilioService); ok {
		mux.HandleFunc("POST /webhooks/twilio", twilio.TwilioWebhookHandler)
		slog.Debug("Server.Handler: Twilio webhook registered", "path", "/webhooks/twilio")
	}
	return mux
}

// TrackReceipts stores every receipt the messaging service emits until ctx is
// done or the channel closes.
func (s *Server) TrackReceipts(ctx context.Context) {
	go func() {
		for {
			select {
			case receipt, ok := <-s.msgService.Receipts():
				if !ok {
					slog.Debug("Server.TrackReceipts: receipts channel closed")
					return
				}
				if err := s.st.AddReceipt(receipt); err != nil {
					slog.Error("Server.TrackReceipts: failed to store receipt", "error", err, "to", receipt.To)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
