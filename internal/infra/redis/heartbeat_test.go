package redis

import (
	"context"
	"testing"
	"time"
)

func TestHeartbeatRoundTrip(t *testing.T) {
	client, _ := testClient(t)
	hb := NewHeartbeatStore(client, time.Minute)
	ctx := context.Background()

	if err := hb.Beat(ctx, "worker-1"); err != nil {
		t.Fatalf("beat: %v", err)
	}
	info, err := hb.GetHeartbeatInfo(ctx, "worker-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if info == nil {
		t.Fatal("heartbeat not found after beat")
	}
	if info.SecondsSinceLastBeat < 0 || info.SecondsSinceLastBeat > 5 {
		t.Fatalf("seconds since beat = %f, want ~0", info.SecondsSinceLastBeat)
	}
}

func TestHeartbeatUnknownWorker(t *testing.T) {
	client, _ := testClient(t)
	hb := NewHeartbeatStore(client, time.Minute)

	info, err := hb.GetHeartbeatInfo(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if info != nil {
		t.Fatalf("unknown worker returned %+v, want nil", info)
	}
}

func TestHeartbeatExpires(t *testing.T) {
	client, mr := testClient(t)
	hb := NewHeartbeatStore(client, 30*time.Second)
	ctx := context.Background()

	if err := hb.Beat(ctx, "worker-1"); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(time.Minute)

	info, err := hb.GetHeartbeatInfo(ctx, "worker-1")
	if err != nil {
		t.Fatal(err)
	}
	if info != nil {
		t.Fatalf("expired heartbeat still visible: %+v", info)
	}
}
