// End-to-end tests driving the full pipeline through the HTTP surface.
package api

import (
	"net/http"
	"testing"

	"balancesheet-rag/internal/models"
)

func TestEndToEndAnalysisFlow(t *testing.T) {
	ts := newTestServer(t)

	// Upload a document; pages classify as group-wide and jio.
	body, contentType := pdfUpload(t, "annual-report.pdf", "application/pdf", []byte("%PDF-1.7 fake"))
	w := ts.do(t, http.MethodPost, "/documents", "alice", body, contentType)
	if w.Code != http.StatusCreated {
		t.Fatalf("Upload failed with %d: %s", w.Code, w.Body.String())
	}
	uploaded := decode[models.UploadResponse](t, w)
	if uploaded.Document.ChunkCount == 0 {
		t.Fatal("No chunks ingested")
	}

	// Health now reports per-vertical chunk counts.
	w = ts.do(t, http.MethodGet, "/health", "", nil, "")
	health := decode[models.HealthResponse](t, w)
	if health.Verticals["jio"] == 0 || health.Verticals[models.VerticalGroupWide] == 0 {
		t.Errorf("Health misses ingested verticals: %+v", health.Verticals)
	}

	// Open a session and run two turns.
	session := createSession(t, ts, "alice")
	for i, question := range []string{"How did JIO revenue develop?", "And JIO subscriber numbers?"} {
		w = ts.doJSON(t, http.MethodPost, "/sessions/"+session.ID.String()+"/messages", "alice",
			models.MessageRequest{Question: question})
		if w.Code != http.StatusOK {
			t.Fatalf("Turn %d failed with %d: %s", i+1, w.Code, w.Body.String())
		}
		turn := decode[models.Turn](t, w)
		if turn.Seq != i+1 {
			t.Errorf("Turn %d has seq %d", i+1, turn.Seq)
		}
		if turn.Status != models.TurnCompleted {
			t.Errorf("Turn %d status %s", i+1, turn.Status)
		}
		if turn.Usage.LatencyMS < 0 || turn.Usage.RetrievedChunks == 0 {
			t.Errorf("Turn %d has implausible usage: %+v", i+1, turn.Usage)
		}
	}

	// The generator saw assembled, source-tagged context.
	if ts.generator.lastContext == "" {
		t.Fatal("Generator received no context")
	}

	// The transcript is ordered and complete.
	w = ts.do(t, http.MethodGet, "/sessions/"+session.ID.String()+"/turns", "alice", nil, "")
	turns := decode[models.TurnListResponse](t, w)
	if turns.Count != 2 {
		t.Fatalf("Expected 2 turns, got %d", turns.Count)
	}
	for i, turn := range turns.Turns {
		if turn.Seq != i+1 {
			t.Errorf("Transcript out of order at position %d: seq %d", i, turn.Seq)
		}
	}

	// Close the session; the transcript stays readable.
	w = ts.do(t, http.MethodPost, "/sessions/"+session.ID.String()+"/close", "alice", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Close failed with %d", w.Code)
	}
	w = ts.do(t, http.MethodGet, "/sessions/"+session.ID.String()+"/turns", "alice", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("Transcript unavailable after close: %d", w.Code)
	}
}

func TestEndToEndReuploadDoesNotDuplicateChunks(t *testing.T) {
	ts := newTestServer(t)
	data := []byte("%PDF-1.7 fake")

	body, contentType := pdfUpload(t, "report.pdf", "application/pdf", data)
	w := ts.do(t, http.MethodPost, "/documents", "alice", body, contentType)
	if w.Code != http.StatusCreated {
		t.Fatalf("First upload failed with %d", w.Code)
	}
	first := decode[models.UploadResponse](t, w)
	sizeAfterFirst := ts.vectors.Len()

	body, contentType = pdfUpload(t, "report.pdf", "application/pdf", data)
	w = ts.do(t, http.MethodPost, "/documents", "alice", body, contentType)
	if w.Code != http.StatusCreated {
		t.Fatalf("Second upload failed with %d", w.Code)
	}
	second := decode[models.UploadResponse](t, w)

	if second.Document.ID != first.Document.ID {
		t.Errorf("Re-upload created a new document: %v vs %v", second.Document.ID, first.Document.ID)
	}
	if ts.vectors.Len() != sizeAfterFirst {
		t.Errorf("Chunks accumulated on re-upload: %d vs %d", ts.vectors.Len(), sizeAfterFirst)
	}
}
