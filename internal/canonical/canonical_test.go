package canonical

import (
	"testing"

	"github.com/meetbot/platform/internal/apperr"
)

func TestExtract_GoogleMeet(t *testing.T) {
	id, err := Extract(GoogleMeet, "https://meet.google.com/abc-defg-hij")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "abc-defg-hij" {
		t.Errorf("expected abc-defg-hij, got %q", id)
	}
}

func TestExtract_GoogleMeet_MalformedCode(t *testing.T) {
	_, err := Extract(GoogleMeet, "https://meet.google.com/not-a-valid-code-here")
	if apperr.KindOf(err) != apperr.Validation {
		t.Errorf("expected Validation, got %v", apperr.KindOf(err))
	}
}

func TestExtract_GoogleMeet_WrongHost(t *testing.T) {
	_, err := Extract(GoogleMeet, "https://zoom.us/j/123456789")
	if apperr.KindOf(err) != apperr.Validation {
		t.Errorf("expected Validation, got %v", apperr.KindOf(err))
	}
}

func TestExtract_Zoom(t *testing.T) {
	id, err := Extract(Zoom, "https://zoom.us/j/123456789")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "123456789" {
		t.Errorf("expected 123456789, got %q", id)
	}
}

func TestExtract_Zoom_MalformedID(t *testing.T) {
	_, err := Extract(Zoom, "https://zoom.us/j/abc")
	if apperr.KindOf(err) != apperr.Validation {
		t.Errorf("expected Validation, got %v", apperr.KindOf(err))
	}
}

func TestExtract_Teams(t *testing.T) {
	id, err := Extract(Teams, "https://teams.microsoft.com/l/meetup-join/19%3ameeting_abc123%40thread.v2/0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "19:meeting_abc123@thread.v2" {
		t.Errorf("unexpected thread id: %q", id)
	}
}

func TestExtract_UnknownPlatform(t *testing.T) {
	_, err := Extract(Platform("webex"), "https://webex.com/meet/123")
	if apperr.KindOf(err) != apperr.Validation {
		t.Errorf("expected Validation, got %v", apperr.KindOf(err))
	}
}

func TestExtract_MalformedURL(t *testing.T) {
	_, err := Extract(GoogleMeet, "not a url at all")
	if apperr.KindOf(err) != apperr.Validation {
		t.Errorf("expected Validation, got %v", apperr.KindOf(err))
	}
}

func TestTriple_String(t *testing.T) {
	triple := Triple{Platform: Zoom, NativeMeetingID: "123456789", Token: "tok"}
	want := "zoom:123456789:tok"
	if got := triple.String(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
