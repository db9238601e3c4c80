package sipmeta

import (
	"bytes"
	"net/netip"
	"strconv"
	"strings"
)

// MediaStream is one m= line of an SDP body.
type MediaStream struct {
	Media    string // audio | video | ...
	Addr     netip.Addr
	RTPPort  uint16
	RTCPPort uint16 // RTPPort+1 unless a=rtcp: or a=rtcp-mux says otherwise
}

// MediaStreams extracts the media streams from the SDP body of a SIP
// message. It returns nil when the message carries no SDP.
func MediaStreams(payload []byte) []MediaStream {
	headerEnd := bytes.Index(payload, []byte("\r\n\r\n"))
	sep := 4
	if headerEnd == -1 {
		headerEnd = bytes.Index(payload, []byte("\n\n"))
		sep = 2
	}
	if headerEnd == -1 || headerEnd+sep >= len(payload) {
		return nil
	}
	if !bytes.Contains(bytes.ToLower(payload[:headerEnd]), []byte("application/sdp")) {
		return nil
	}
	return parseSDP(payload[headerEnd+sep:])
}

func parseSDP(body []byte) []MediaStream {
	var (
		sessionAddr netip.Addr
		streams     []MediaStream
		cur         *MediaStream
	)
	flush := func() {
		if cur == nil {
			return
		}
		if !cur.Addr.IsValid() {
			cur.Addr = sessionAddr
		}
		if cur.Addr.IsValid() && cur.RTPPort != 0 {
			streams = append(streams, *cur)
		}
		cur = nil
	}

	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) < 2 || line[1] != '=' {
			continue
		}
		value := string(line[2:])

		switch line[0] {
		case 'c':
			// c=IN IP4 192.168.1.100
			addr := connectionAddr(value)
			if cur != nil {
				cur.Addr = addr
			} else {
				sessionAddr = addr
			}
		case 'm':
			flush()
			// m=audio 49170 RTP/AVP 0 8
			parts := strings.Fields(value)
			if len(parts) < 3 {
				continue
			}
			port, err := strconv.ParseUint(parts[1], 10, 16)
			if err != nil {
				continue
			}
			cur = &MediaStream{Media: parts[0], RTPPort: uint16(port), RTCPPort: uint16(port) + 1}
		case 'a':
			if cur == nil {
				continue
			}
			switch {
			case value == "rtcp-mux":
				cur.RTCPPort = cur.RTPPort
			case strings.HasPrefix(value, "rtcp:"):
				// a=rtcp:53020 IN IP4 126.16.64.4
				fields := strings.Fields(value[5:])
				if len(fields) == 0 {
					continue
				}
				if port, err := strconv.ParseUint(fields[0], 10, 16); err == nil {
					cur.RTCPPort = uint16(port)
				}
			}
		}
	}
	flush()
	return streams
}

func connectionAddr(value string) netip.Addr {
	parts := strings.Fields(value)
	if len(parts) < 3 {
		return netip.Addr{}
	}
	// Multicast addresses may carry /ttl.
	host, _, _ := strings.Cut(parts[2], "/")
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr
}
