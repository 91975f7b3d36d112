package api

import (
	"net/http"
	"strings"
	"testing"

	"balancesheet-rag/internal/faults"
	"balancesheet-rag/internal/models"
)

func createSession(t *testing.T, ts *testServer, user string) models.ChatSession {
	t.Helper()
	w := ts.doJSON(t, http.MethodPost, "/sessions", user, models.CreateSessionRequest{Title: "Quarterly analysis"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating a session, got %d: %s", w.Code, w.Body.String())
	}
	return decode[models.ChatSession](t, w)
}

func uploadFixture(t *testing.T, ts *testServer, user string) {
	t.Helper()
	body, contentType := pdfUpload(t, "balance-sheet.pdf", "application/pdf", []byte("%PDF-1.7 fake"))
	w := ts.do(t, http.MethodPost, "/documents", user, body, contentType)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 uploading, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMessageScenarios(t *testing.T) {
	tests := []struct {
		name       string
		user       string
		question   string
		wantStatus int
		check      func(t *testing.T, turn models.Turn)
	}{
		{
			name:       "analyst gets a grounded answer",
			user:       "alice",
			question:   "How did JIO revenue develop?",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, turn models.Turn) {
				if turn.Status != models.TurnCompleted {
					t.Errorf("Expected completed, got %s", turn.Status)
				}
				if len(turn.Sources) == 0 {
					t.Error("Expected source citations")
				}
			},
		},
		{
			name:       "jio ceo retrieves jio content",
			user:       "bob",
			question:   "How did JIO revenue develop?",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, turn models.Turn) {
				for _, src := range turn.Sources {
					if !src.Verticals.Contains("jio") {
						t.Errorf("Source outside the jio scope: %+v", src)
					}
				}
			},
		},
		{
			name:       "retail ceo gets insufficient data",
			user:       "rita",
			question:   "How did JIO revenue develop?",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, turn models.Turn) {
				if turn.Answer != "The available balance-sheet data is insufficient to answer this question." {
					t.Errorf("Expected the insufficient-data answer, got %q", turn.Answer)
				}
				if len(turn.Sources) != 0 {
					t.Errorf("Expected no sources, got %+v", turn.Sources)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			uploadFixture(t, ts, "alice")
			session := createSession(t, ts, tt.user)

			w := ts.doJSON(t, http.MethodPost, "/sessions/"+session.ID.String()+"/messages", tt.user,
				models.MessageRequest{Question: tt.question})
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			turn := decode[models.Turn](t, w)
			tt.check(t, turn)
		})
	}
}

func TestMessageValidation(t *testing.T) {
	ts := newTestServer(t)
	session := createSession(t, ts, "alice")

	w := ts.doJSON(t, http.MethodPost, "/sessions/"+session.ID.String()+"/messages", "alice",
		models.MessageRequest{Question: "   "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a blank question, got %d", w.Code)
	}

	w = ts.doJSON(t, http.MethodPost, "/sessions/not-a-uuid/messages", "alice",
		models.MessageRequest{Question: "revenue?"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a malformed session id, got %d", w.Code)
	}
}

func TestMessageOnClosedSessionConflicts(t *testing.T) {
	ts := newTestServer(t)
	session := createSession(t, ts, "alice")

	w := ts.do(t, http.MethodPost, "/sessions/"+session.ID.String()+"/close", "alice", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 closing, got %d", w.Code)
	}
	closed := decode[models.ChatSession](t, w)
	if closed.State != models.SessionClosed {
		t.Fatalf("Expected a closed session, got %s", closed.State)
	}

	w = ts.doJSON(t, http.MethodPost, "/sessions/"+session.ID.String()+"/messages", "alice",
		models.MessageRequest{Question: "revenue?"})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 on a closed session, got %d: %s", w.Code, w.Body.String())
	}
}

func TestForeignSessionIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	session := createSession(t, ts, "alice")

	w := ts.doJSON(t, http.MethodPost, "/sessions/"+session.ID.String()+"/messages", "bob",
		models.MessageRequest{Question: "revenue?"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on a foreign session, got %d", w.Code)
	}
}

func TestEmbeddingFailureRecordsFailedTurn(t *testing.T) {
	ts := newTestServer(t)
	uploadFixture(t, ts, "alice")
	session := createSession(t, ts, "alice")
	ts.embedder.shouldFail = true

	w := ts.doJSON(t, http.MethodPost, "/sessions/"+session.ID.String()+"/messages", "alice",
		models.MessageRequest{Question: "How did revenue develop?"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d: %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodGet, "/sessions/"+session.ID.String()+"/turns", "alice", nil, "")
	turns := decode[models.TurnListResponse](t, w)
	if turns.Count != 1 {
		t.Fatalf("Expected the question to be kept as a failed turn, got %d turns", turns.Count)
	}
	turn := turns.Turns[0]
	if turn.Status != models.TurnFailed {
		t.Errorf("Expected a failed turn, got %s", turn.Status)
	}
	if turn.FailReason != string(faults.KindEmbeddingUnavailable) {
		t.Errorf("Unexpected fail reason: %q", turn.FailReason)
	}
	if !strings.Contains(turn.Question, "revenue") {
		t.Errorf("The user's question was lost: %q", turn.Question)
	}
}

func TestGenerationTimeoutMapsToGatewayTimeout(t *testing.T) {
	ts := newTestServer(t)
	uploadFixture(t, ts, "alice")
	session := createSession(t, ts, "alice")
	ts.generator.failKind = faults.KindGenerationTimeout

	w := ts.doJSON(t, http.MethodPost, "/sessions/"+session.ID.String()+"/messages", "alice",
		models.MessageRequest{Question: "How did JIO revenue develop?"})
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("Expected 504, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSessionListing(t *testing.T) {
	ts := newTestServer(t)
	createSession(t, ts, "alice")
	createSession(t, ts, "alice")
	createSession(t, ts, "bob")

	w := ts.do(t, http.MethodGet, "/sessions", "alice", nil, "")
	list := decode[models.SessionListResponse](t, w)
	if list.Count != 2 {
		t.Errorf("Expected 2 sessions for alice, got %d", list.Count)
	}
	if list.User != "alice" {
		t.Errorf("Unexpected user in listing: %q", list.User)
	}
}
