package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIsValidIdentity(t *testing.T) {
	valid := []string{
		"0x1234567890abcdef1234567890abcdef12345678",
		"0xABCDEF1234567890abcdef1234567890ABCDEF12",
	}
	invalid := []string{
		"",
		"0x123",
		"1234567890abcdef1234567890abcdef12345678",
		"0xZZ34567890abcdef1234567890abcdef12345678",
		"0x1234567890abcdef1234567890abcdef123456789", // 41 chars
	}

	for _, id := range valid {
		if !IsValidIdentity(id) {
			t.Errorf("IsValidIdentity(%q) = false, want true", id)
		}
	}
	for _, id := range invalid {
		if IsValidIdentity(id) {
			t.Errorf("IsValidIdentity(%q) = true, want false", id)
		}
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	errs := Validate(
		Required("item", ""),
		ValidIdentity("userIdentity", "not-an-identity"),
		PositiveAmount("price", "-1"),
		AcceptedCurrency("currency", "EUR"),
	)
	if len(errs) != 4 {
		t.Fatalf("expected 4 errors, got %d: %v", len(errs), errs)
	}
	if !strings.Contains(errs.Error(), "item") {
		t.Errorf("Error() should name first failing field, got %q", errs.Error())
	}
}

func TestValidate_AllPass(t *testing.T) {
	errs := Validate(
		Required("item", "api-credits"),
		ValidIdentity("userIdentity", "0x1234567890abcdef1234567890abcdef12345678"),
		PositiveAmount("price", "0.03"),
		AcceptedCurrency("currency", "USDC"),
		MaxLength("item", "api-credits", 100),
	)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 8); got != "hellowor" {
		t.Errorf("SanitizeString = %q", got)
	}
}

func TestIdentityParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/budget/:identity", IdentityParamMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/budget/bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed identity: status = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/budget/0x1234567890abcdef1234567890abcdef12345678", nil))
	if w.Code != http.StatusOK {
		t.Errorf("valid identity: status = %d, want 200", w.Code)
	}
}
