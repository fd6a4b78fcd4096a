package rtsp

import (
	"encoding/base64"
	"strings"

	"github.com/bluenviron/gortsplib/v4/pkg/base"
)

// credentials extracts Basic credentials from a request's Authorization
// header. Missing or malformed headers yield empty credentials, which the
// authorizer treats as the anonymous user.
func credentials(req *base.Request) (user, pass string) {
	if req == nil {
		return "", ""
	}
	v, ok := req.Header["Authorization"]
	if !ok || len(v) != 1 {
		return "", ""
	}
	const prefix = "Basic "
	if !strings.HasPrefix(v[0], prefix) {
		return "", ""
	}
	raw, err := base64.StdEncoding.DecodeString(v[0][len(prefix):])
	if err != nil {
		return "", ""
	}
	user, pass, ok = strings.Cut(string(raw), ":")
	if !ok {
		return "", ""
	}
	return user, pass
}
