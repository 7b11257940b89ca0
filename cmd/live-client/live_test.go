package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/pawfect-live/internal/domain"
	"github.com/weiawesome/pawfect-live/internal/hubapi"
	"github.com/weiawesome/pawfect-live/internal/ui"
	"github.com/weiawesome/pawfect-live/pkg/response"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := ui.Out
	ui.Out = &buf
	t.Cleanup(func() { ui.Out = prev })
	return &buf
}

func TestCheckLive_Once(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/v1/rooms/:room_id/live", func(c *gin.Context) {
		response.Success(c, domain.LiveStatus{RoomID: c.Param("room_id"), IsLive: true, AdminName: "Shelter"})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	out := captureOutput(t)
	require.NoError(t, checkLive(context.Background(), hubapi.New(srv.URL, ""), "kittens", 0))
	assert.Contains(t, out.String(), "kittens")
	assert.Contains(t, out.String(), "hosted by Shelter")
}

func TestCheckLive_FollowPrintsChanges(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var calls atomic.Int32
	r := gin.New()
	r.GET("/api/v1/rooms/:room_id/live", func(c *gin.Context) {
		n := calls.Add(1)
		response.Success(c, domain.LiveStatus{RoomID: "kittens", IsLive: n >= 3})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	out := captureOutput(t)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, checkLive(ctx, hubapi.New(srv.URL, ""), "kittens", 20*time.Millisecond))
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("kittens is offline")))
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("LIVE")))
}
