package bybit

import (
	"testing"
)

func TestFeedParseFrame(t *testing.T) {
	feed := NewFeed()

	frame, err := feed.ParseFrame([]byte(`{"success":false,"ret_msg":"bad topic","op":"subscribe"}`))
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if frame.Ack == nil || frame.Ack.OK || frame.Ack.Detail != "bad topic" {
		t.Errorf("unexpected ack frame: %+v", frame)
	}

	frame, err = feed.ParseFrame([]byte(`{"topic":"tickers.BTCUSDT","data":{"symbol":"BTCUSDT","lastPrice":"45000"}}`))
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if frame.Ack != nil || len(frame.Ticks) != 1 {
		t.Fatalf("unexpected ticker frame: %+v", frame)
	}
	if frame.Ticks[0].Symbol != "BTCUSDT" || frame.Ticks[0].LastPrice != "45000" {
		t.Errorf("unexpected tick: %+v", frame.Ticks[0])
	}

	frame, err = feed.ParseFrame([]byte(`{"op":"pong"}`))
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if frame.Ack != nil || len(frame.Ticks) != 0 {
		t.Errorf("pong should map to an empty frame: %+v", frame)
	}

	if _, err := feed.ParseFrame([]byte(`garbage`)); err == nil {
		t.Error("malformed frame should be an error")
	}
}
