package sol

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

const (
	EventBurnToBTC = "BurnToBTCEvent"
	EventBurnSwap  = "BurnSwapEvent"

	programDataPrefix = "Program data: "
)

var errShortEvent = errors.New("event data truncated")

// BurnEvent is a decoded bridge burn. BurnToBTCEvent fills PayoutAddress and
// Encrypted; BurnSwapEvent pays SOL back to the burning user.
type BurnEvent struct {
	Name          string
	User          string
	Amount        uint64
	PayoutAddress string
	Encrypted     bool
	Timestamp     int64
}

func discriminator(name string) []byte {
	sum := sha256.Sum256([]byte("event:" + name))
	return sum[:8]
}

var (
	burnToBTCDiscriminator = discriminator(EventBurnToBTC)
	burnSwapDiscriminator  = discriminator(EventBurnSwap)
)

// DecodeBurnEvents returns the burn events the bridge program emitted. Data
// lines are only trusted while the bridge program is the innermost running
// program, so another program cannot forge them.
func DecodeBurnEvents(logs []string, programID string) ([]BurnEvent, error) {
	var (
		stack  []string
		events []BurnEvent
	)

	for _, line := range logs {
		if strings.HasPrefix(line, programDataPrefix) {
			if len(stack) == 0 || stack[len(stack)-1] != programID {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, programDataPrefix))
			if err != nil {
				return nil, fmt.Errorf("decode program data: %w", err)
			}
			ev, ok, err := decodeBurnEvent(raw)
			if err != nil {
				return nil, err
			}
			if ok {
				events = append(events, ev)
			}
			continue
		}

		// "Program <id> invoke [n]", "Program <id> success", "Program <id> failed: ..."
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[0] != "Program" || strings.HasSuffix(fields[1], ":") {
			continue
		}
		switch fields[2] {
		case "invoke":
			stack = append(stack, fields[1])
		case "success", "failed:":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return events, nil
}

func decodeBurnEvent(raw []byte) (BurnEvent, bool, error) {
	if len(raw) < 8 {
		return BurnEvent{}, false, nil
	}

	r := &borshReader{buf: raw[8:]}
	var ev BurnEvent
	switch {
	case bytes.Equal(raw[:8], burnToBTCDiscriminator):
		ev.Name = EventBurnToBTC
		ev.User = r.pubkey()
		ev.Amount = r.u64()
		ev.PayoutAddress = r.string()
		ev.Encrypted = r.bool()
		ev.Timestamp = r.i64()
	case bytes.Equal(raw[:8], burnSwapDiscriminator):
		ev.Name = EventBurnSwap
		ev.User = r.pubkey()
		ev.Amount = r.u64()
		ev.PayoutAddress = ev.User
		ev.Timestamp = r.i64()
	default:
		return BurnEvent{}, false, nil
	}

	if r.err != nil {
		return BurnEvent{}, false, fmt.Errorf("%s: %w", ev.Name, r.err)
	}
	return ev, true, nil
}

type borshReader struct {
	buf []byte
	err error
}

func (r *borshReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf) < n {
		r.err = errShortEvent
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *borshReader) pubkey() string {
	b := r.take(32)
	if b == nil {
		return ""
	}
	return base58.Encode(b)
}

func (r *borshReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *borshReader) i64() int64 {
	return int64(r.u64())
}

func (r *borshReader) bool() bool {
	b := r.take(1)
	return b != nil && b[0] == 1
}

func (r *borshReader) string() string {
	b := r.take(4)
	if b == nil {
		return ""
	}
	return string(r.take(int(binary.LittleEndian.Uint32(b))))
}
