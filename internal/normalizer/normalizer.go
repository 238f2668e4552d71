// Package normalizer implements the pure transform from a loosely-typed
// raw exchange event into a domain.Tick.
package normalizer

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ayankousky/ticker-collector/internal/domain"
)

// RawEvent is the loosely-typed shape a WebSocket client callback
// delivers. Numeric fields may arrive as float64 or as numeric strings
// depending on the exchange's wire format; Normalize tolerates both.
type RawEvent map[string]any

// Normalize converts a RawEvent into a canonical domain.Tick.
//
// exchangeName is the identity of the handler receiving the event: it
// fills tick.Exchange when the event omits it, and always wins over a
// contradicting value on the event itself (spec §4.1 — never trust a
// contradicting identity silently).
func Normalize(event RawEvent, exchangeName string) (domain.Tick, error) {
	tick := domain.Tick{Exchange: exchangeName}

	symbol, ok := event["symbol"]
	if !ok {
		return domain.Tick{}, &domain.MalformedTickerError{Field: "symbol", Err: fmt.Errorf("missing")}
	}
	symbolStr, ok := symbol.(string)
	if !ok || symbolStr == "" {
		return domain.Tick{}, &domain.MalformedTickerError{Field: "symbol", Err: fmt.Errorf("not a non-empty string")}
	}
	tick.Symbol = symbolStr

	price, hasPrice := event["price"]
	last, hasLast := event["last"]
	switch {
	case hasPrice:
		p, err := toFloat(price)
		if err != nil {
			return domain.Tick{}, &domain.MalformedTickerError{Field: "price", Err: err}
		}
		tick.Price = p
	case hasLast:
		l, err := toFloat(last)
		if err != nil {
			return domain.Tick{}, &domain.MalformedTickerError{Field: "last", Err: err}
		}
		tick.Price = l
	default:
		return domain.Tick{}, &domain.MalformedTickerError{Field: "price", Err: fmt.Errorf("neither price nor last present")}
	}

	if hasLast {
		l, err := toFloat(last)
		if err != nil {
			return domain.Tick{}, &domain.MalformedTickerError{Field: "last", Err: err}
		}
		tick.Last = &l
	} else {
		last := tick.Price
		tick.Last = &last
	}

	if bid, ok := event["bid"]; ok {
		v, err := toFloat(bid)
		if err != nil {
			return domain.Tick{}, &domain.MalformedTickerError{Field: "bid", Err: err}
		}
		tick.Bid = &v
	}
	if ask, ok := event["ask"]; ok {
		v, err := toFloat(ask)
		if err != nil {
			return domain.Tick{}, &domain.MalformedTickerError{Field: "ask", Err: err}
		}
		tick.Ask = &v
	}
	if volume, ok := event["volume"]; ok {
		v, err := toFloat(volume)
		if err != nil {
			return domain.Tick{}, &domain.MalformedTickerError{Field: "volume", Err: err}
		}
		tick.Volume = &v
	}
	if change, ok := event["change"]; ok {
		v, err := toFloat(change)
		if err != nil {
			return domain.Tick{}, &domain.MalformedTickerError{Field: "change", Err: err}
		}
		tick.Change = &v
	}
	if pct, ok := event["percentage"]; ok {
		v, err := toFloat(pct)
		if err != nil {
			return domain.Tick{}, &domain.MalformedTickerError{Field: "percentage", Err: err}
		}
		tick.Percent = &v
	}

	// An event's own "exchange" field, if present, is ignored: the
	// handler's identity always wins (spec §4.1).

	if rawTime, ok := event["time"]; ok {
		v, err := toFloat(rawTime)
		if err != nil {
			return domain.Tick{}, &domain.MalformedTickerError{Field: "time", Err: err}
		}
		tick.Time = v
	} else if rawTimestamp, ok := event["timestamp"]; ok {
		v, err := toFloat(rawTimestamp)
		if err != nil {
			return domain.Tick{}, &domain.MalformedTickerError{Field: "timestamp", Err: err}
		}
		tick.Time = v
	} else {
		tick.Time = float64(time.Now().UnixNano()) / float64(time.Second)
	}

	if err := tick.Validate(); err != nil {
		return domain.Tick{}, err
	}

	return tick, nil
}

// ToRaw converts a Tick back into a RawEvent, the inverse of Normalize
// for fields that round-trip cleanly (optional fields stay absent).
func ToRaw(t domain.Tick) RawEvent {
	event := RawEvent{
		"symbol":   t.Symbol,
		"exchange": t.Exchange,
		"price":    t.Price,
		"time":     t.Time,
	}
	if t.Bid != nil {
		event["bid"] = *t.Bid
	}
	if t.Ask != nil {
		event["ask"] = *t.Ask
	}
	if t.Last != nil {
		event["last"] = *t.Last
	}
	if t.Volume != nil {
		event["volume"] = *t.Volume
	}
	if t.Change != nil {
		event["change"] = *t.Change
	}
	if t.Percent != nil {
		event["percentage"] = *t.Percent
	}
	return event
}

// toFloat tolerantly parses a numeric field from either a JSON number
// (float64, as produced by encoding/json) or a numeric string.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as number: %w", n, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
