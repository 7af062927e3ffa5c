// Package logfields holds the canonical slog keys used across registrydash so
// log ingestion schemas do not drift between packages.
package logfields

import (
	"log/slog"
	"time"
)

const (
	KeyResource   = "resource"
	KeyFetchID    = "fetch_id"
	KeyGeneration = "generation"
	KeyFetchClass = "fetch_class"
	KeyDurationMS = "duration_ms"
	KeyHostPath   = "host_path"
	KeyNamespace  = "namespace"
	KeyPollEvery  = "poll_interval"
	KeyJobName    = "job_name"
	KeyPath       = "path"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
	KeyURL        = "url"
	KeyAttempt    = "attempt"
	KeyError      = "error"
)

func Resource(name string) slog.Attr {
	return slog.String(KeyResource, name)
}

func FetchID(id string) slog.Attr {
	return slog.String(KeyFetchID, id)
}

func Generation(gen uint64) slog.Attr {
	return slog.Uint64(KeyGeneration, gen)
}

func FetchClass(class string) slog.Attr {
	return slog.String(KeyFetchClass, class)
}

// Duration records d in fractional milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d)/float64(time.Millisecond))
}

func HostPath(p string) slog.Attr {
	return slog.String(KeyHostPath, p)
}

func Namespace(ns string) slog.Attr {
	return slog.String(KeyNamespace, ns)
}

func PollInterval(d time.Duration) slog.Attr {
	return slog.Duration(KeyPollEvery, d)
}

func JobName(n string) slog.Attr {
	return slog.String(KeyJobName, n)
}

func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

func UserAgent(ua string) slog.Attr {
	return slog.String(KeyUserAgent, ua)
}

func RemoteAddr(addr string) slog.Attr {
	return slog.String(KeyRemoteAddr, addr)
}

func URL(u string) slog.Attr {
	return slog.String(KeyURL, u)
}

func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Error renders err as a string attribute; a nil error yields an empty value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
