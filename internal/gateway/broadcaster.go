package gateway

import (
	"strconv"
	"strings"
	"time"
)

// Broadcast sends data on channel to every matching client. The envelope
// is hand-built around the already encoded payload:
//
//	{"type":"...","channel":"...","data":...,"ts":"...","seq":N,"channel_seq":N}
//
// Shared channels (anything but a series) also keep their last envelope so
// new clients start with the current watchlist and settings.
func (h *Hub) Broadcast(channel, typ string, data []byte) int {
	now := h.now().UTC()

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.seq++
	seq := h.seq
	rb, exists := h.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(500) // 500 envelopes per channel
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	buf := buildEnvelope(typ, channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, buf)

	sent, dropped := 0, 0
	h.mu.Lock()
	if !strings.HasPrefix(channel, seriesPrefix) {
		h.latest[channel] = buf
	}
	for client := range h.clients {
		if !client.matches(channel) {
			continue
		}
		select {
		case client.send <- buf:
			sent++
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 && h.OnDrop != nil {
		for i := 0; i < dropped; i++ {
			h.OnDrop()
		}
	}
	return sent
}

func buildEnvelope(typ, channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(typ)+len(channel)+len(data)+160)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, typ...)
	buf = append(buf, `","channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}
