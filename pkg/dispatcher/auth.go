package dispatcher

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gnsscaster/ntripcaster/pkg/authstore"
	"github.com/gnsscaster/ntripcaster/pkg/dialect"
)

const digestRealm = "NTRIP"

func decodeBasic(encoded string) (user, password string, ok bool) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", false
	}
	user, password, ok = strings.Cut(string(raw), ":")
	return user, password, ok
}

// newNonce returns a 16-hex-character nonce for a Digest challenge.
func newNonce() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// basicChallenge and digestChallenge build the two WWW-Authenticate
// header values a 401 response carries.
func basicChallenge() string {
	return fmt.Sprintf(`Basic realm="%s"`, digestRealm)
}

func digestChallenge(nonce string) string {
	return fmt.Sprintf(`Digest realm="%s", nonce=%s, algorithm=MD5, qop="auth"`, digestRealm, nonce)
}

// digestParams is the parsed key=value set of a "Digest ..."
// Authorization header, quoted or bare.
type digestParams map[string]string

func parseDigestAuth(header string) (digestParams, bool) {
	const prefix = "Digest "
	if !strings.HasPrefix(header, prefix) {
		return nil, false
	}
	out := make(digestParams)
	for _, part := range splitDigestParams(header[len(prefix):]) {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.Trim(strings.TrimSpace(kv[1]), `"`)
	}
	return out, true
}

// splitDigestParams splits on commas that aren't inside a quoted
// value; a plain strings.Split would break on a comma embedded in a
// quoted field like qop="auth,auth-int".
func splitDigestParams(s string) []string {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// verifyDigest recomputes the Digest response from the user's
// plaintext password and compares it constant-time. Only legacy
// plaintext accounts carry a retrievable password
// (authstore.IsLegacyPlaintext); PBKDF2-hashed accounts cannot
// authenticate via Digest, by construction of a one-way hash; see
// authstore.UserHash's doc comment.
func verifyDigest(params digestParams, method, storedHash string) bool {
	if !authstore.IsLegacyPlaintext(storedHash) {
		return false
	}
	user, nonce, uri, response := params["username"], params["nonce"], params["uri"], params["response"]
	if user == "" || nonce == "" || uri == "" || response == "" {
		return false
	}

	ha1 := md5Hex(user + ":" + digestRealm + ":" + storedHash)
	ha2 := md5Hex(method + ":" + uri)

	var want string
	if qop := params["qop"]; qop != "" {
		nc, cnonce := params["nc"], params["cnonce"]
		want = md5Hex(ha1 + ":" + nonce + ":" + nc + ":" + cnonce + ":" + qop + ":" + ha2)
	} else {
		want = md5Hex(ha1 + ":" + nonce + ":" + ha2)
	}

	return subtle.ConstantTimeCompare([]byte(strings.ToLower(want)), []byte(strings.ToLower(response))) == 1
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// verifyDigestConsumer authenticates a download's "Digest ..."
// Authorization header against the store, the Digest counterpart to
// Store.VerifyConsumer. It returns the authenticated username so the
// caller can apply the per-user connection cap the same way it does
// for Basic auth.
func verifyDigestConsumer(creds *authstore.Store, mount, method string, params digestParams) (user string, reason authstore.Reason) {
	if _, ok := creds.MountSecret(mount); !ok {
		return "", authstore.NoSuchMount
	}
	user = params["username"]
	hash, ok := creds.UserHash(user)
	if !ok {
		return "", authstore.NoSuchUser
	}
	if !verifyDigest(params, method, hash) {
		return "", authstore.BadUserPassword
	}
	return user, authstore.OK
}

// verifyDigestMountProducer is the Digest counterpart to
// Store.VerifyMountProducer. V10_HTTP's password is the mount secret
// itself (stored as given, so it is Digest-legacy verifiable unless it
// contains a "$"); V20's is a user account, subject to the same ownership
// check VerifyMountProducer applies.
func verifyDigestMountProducer(creds *authstore.Store, mount string, d dialect.Dialect, method string, params digestParams) (user string, reason authstore.Reason) {
	switch d {
	case dialect.V10HTTP:
		secret, ok := creds.MountSecret(mount)
		if !ok {
			return "", authstore.NoSuchMount
		}
		if !verifyDigest(params, method, secret) {
			return "", authstore.BadMountPassword
		}
		return "", authstore.OK
	case dialect.V20:
		user = params["username"]
		hash, ok := creds.UserHash(user)
		if !ok {
			return "", authstore.NoSuchUser
		}
		if !verifyDigest(params, method, hash) {
			return "", authstore.BadUserPassword
		}
		owner, ok := creds.MountOwner(mount)
		if !ok {
			return "", authstore.NoSuchMount
		}
		if owner != "" && owner != user {
			return "", authstore.NotAuthorized
		}
		return user, authstore.OK
	default:
		// V08/V10_NATIVE/RTSP carry the mount password in the SOURCE
		// line itself; they never reach here with a Digest header.
		return "", authstore.BadMountPassword
	}
}
