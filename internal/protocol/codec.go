package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EncodeCommand renders req as one serial command line.
//
// Format: action:credential[:opt=val,opt=val]\n. The options segment and its
// delimiter are omitted when no option is set.
func EncodeCommand(req Request) string {
	var b strings.Builder
	b.WriteString(string(req.Action))
	b.WriteByte(':')
	b.WriteString(req.Key)

	opts := make([]string, 0, 2)
	if req.Options.Delay > 0 {
		opts = append(opts, "delay="+strconv.Itoa(req.Options.Delay))
	}
	if req.Options.Force {
		opts = append(opts, "force=true")
	}
	if len(opts) > 0 {
		b.WriteByte(':')
		b.WriteString(strings.Join(opts, ","))
	}
	b.WriteByte('\n')
	return b.String()
}

// DecodeCommand parses one serial command line.
func DecodeCommand(line string) (Request, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.SplitN(line, ":", 3)
	if len(fields) < 2 {
		return Request{}, fmt.Errorf("%w: expected action:key, got %q", ErrMalformedCommand, line)
	}

	action, err := ParseAction(fields[0])
	if err != nil {
		return Request{}, err
	}

	req := Request{Action: action, Key: fields[1]}
	if len(fields) == 3 {
		opts, err := decodeOptions(fields[2])
		if err != nil {
			return Request{}, err
		}
		req.Options = opts
	}
	return req, nil
}

func decodeOptions(raw string) (Options, error) {
	var opts Options
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return Options{}, fmt.Errorf("%w: option %q has no value", ErrMalformedCommand, pair)
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "delay":
			delay, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || delay < 0 {
				return Options{}, fmt.Errorf("%w: invalid delay %q", ErrMalformedCommand, value)
			}
			opts.Delay = delay
		case "force":
			force, err := strconv.ParseBool(strings.TrimSpace(value))
			if err != nil {
				return Options{}, fmt.Errorf("%w: invalid force %q", ErrMalformedCommand, value)
			}
			opts.Force = force
		}
	}
	return opts, nil
}

// EncodeResponse renders resp as one serial reply line.
func EncodeResponse(resp Response) string {
	resp = resp.Normalize()
	if resp.Status != nil {
		payload, err := json.Marshal(resp)
		if err == nil {
			return string(payload) + "\n"
		}
	}

	token := "OK"
	if !resp.Success {
		token = "ERROR"
	}
	message := strings.ReplaceAll(resp.Message, "\n", " ")
	return token + ":" + message + "\n"
}

// DecodeResponse parses one serial reply line.
//
// Unrecognized leading tokens decode as a success carrying the raw text.
func DecodeResponse(line string) (Response, error) {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Response{}, fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}

	if strings.HasPrefix(trimmed, "{") {
		var resp Response
		if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
			return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return resp.Normalize(), nil
	}

	token, message, found := strings.Cut(trimmed, ":")
	if !found {
		return Response{Success: true, Message: trimmed}, nil
	}

	switch strings.ToUpper(strings.TrimSpace(token)) {
	case "OK", "SUCCESS":
		return Response{Success: true, Message: message}, nil
	case "ERROR", "FAIL":
		return Response{Success: false, Message: message}, nil
	default:
		return Response{Success: true, Message: trimmed}, nil
	}
}
