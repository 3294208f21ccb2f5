package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskhub/internal/model"
)

func TestOAuthRefresherRefreshesCanvasToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login/oauth2/token" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "r1" {
			t.Errorf("unexpected refresh request %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "a2", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer server.Close()

	refresher := NewOAuthRefresher(OAuthSettings{
		CanvasBaseURL: server.URL,
		Canvas:        OAuthClient{ClientID: "id", ClientSecret: "secret"},
	}, server.Client())
	if refresher == nil || !refresher.Supports(model.SourceCanvas) {
		t.Fatalf("expected canvas refresh to be configured")
	}
	if refresher.Supports(model.SourceOutlook) {
		t.Errorf("expected outlook refresh to be unconfigured")
	}

	before := time.Now()
	got, err := refresher.Refresh(context.Background(), model.Credential{
		ID: 7, UserID: 1, Source: model.SourceCanvas, AccessToken: "a1", RefreshToken: "r1",
	})
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if got.AccessToken != "a2" || got.RefreshToken != "r1" || got.ID != 7 {
		t.Errorf("unexpected refreshed credential %+v", got)
	}
	if got.ExpiresAt == nil || got.ExpiresAt.Before(before.Add(30*time.Minute)) {
		t.Errorf("expected expiry about an hour out, got %v", got.ExpiresAt)
	}
}

func TestOAuthRefresherErrors(t *testing.T) {
	if NewOAuthRefresher(OAuthSettings{}, nil) != nil {
		t.Fatalf("expected nil refresher without any client")
	}

	refresher := NewOAuthRefresher(OAuthSettings{Google: OAuthClient{ClientID: "g"}}, nil)
	if _, err := refresher.Refresh(context.Background(), model.Credential{Source: model.SourceHandshake, RefreshToken: "x"}); err == nil {
		t.Errorf("expected error for unconfigured source")
	}
	if _, err := refresher.Refresh(context.Background(), model.Credential{Source: model.SourceGoogleCalendar}); err == nil {
		t.Errorf("expected error without refresh token")
	}
}
