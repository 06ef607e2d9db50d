package ingest

import (
	"errors"
	"strings"
)

// Значения по умолчанию для адреса сервера.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = "8080"
)

// Зарегистрированные пути протокола.
const (
	PathStatus   = "/status"
	PathData     = "/data"
	PathShutdown = "/shutdown"
)

// Фиксированные ответы сервера. Других ответов протокол не допускает.
const (
	ResponseStatusOK    = "200 OK – Server running"
	ResponseShutdown    = "200 OK - Server shutting down"
	ResponseDataCreated = "201 Created – Data received"
	ResponseNotFound    = "404 Not Found"
)

var (
	// ErrMalformedRequest возвращается, если в запросе нет метода или пути
	ErrMalformedRequest = errors.New("malformed request")

	// ErrUnknownMethod возвращается для метода вне набора {GET, POST}
	ErrUnknownMethod = errors.New("unknown method")
)

// Method - метод запроса.
type Method int

const (
	MethodUnknown Method = iota
	MethodGet
	MethodPost
)

// ParseMethod сопоставляет строку с методом без учета регистра.
func ParseMethod(s string) Method {
	switch strings.ToUpper(s) {
	case "GET":
		return MethodGet
	case "POST":
		return MethodPost
	default:
		return MethodUnknown
	}
}

// String возвращает каноническое имя метода.
func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	default:
		return "UNKNOWN"
	}
}

// Request - разобранный запрос вида "METHOD PATH[ PAYLOAD]".
type Request struct {
	Method  Method
	Path    string
	Payload string
}

// ParseRequest разбирает одну строку запроса.
//
// METHOD и PATH - первые два токена, разделенные пробельными символами.
// Остаток строки после PATH без ровно одного ведущего пробела - это PAYLOAD.
// Путь сравнивается с учетом регистра, метод - без.
func ParseRequest(line string) (Request, error) {
	line = strings.TrimRight(line, "\r\n")

	method, rest, ok := nextToken(line)
	if !ok {
		return Request{}, ErrMalformedRequest
	}
	path, rest, ok := nextToken(rest)
	if !ok {
		return Request{}, ErrMalformedRequest
	}

	req := Request{
		Method:  ParseMethod(method),
		Path:    path,
		Payload: strings.TrimPrefix(rest, " "),
	}
	if req.Method == MethodUnknown {
		return req, ErrUnknownMethod
	}
	return req, nil
}

// nextToken пропускает ведущие пробельные символы и возвращает следующий токен
// и остаток строки сразу после него (без изменения пробелов в остатке).
func nextToken(s string) (token, rest string, ok bool) {
	s = strings.TrimLeft(s, " \t\v\f")
	if s == "" {
		return "", "", false
	}
	end := strings.IndexAny(s, " \t\v\f")
	if end < 0 {
		return s, "", true
	}
	return s[:end], s[end:], true
}

// FormatRequest собирает строку запроса. Payload добавляется только для POST.
func FormatRequest(method Method, path, payload string) string {
	var b strings.Builder
	b.WriteString(method.String())
	b.WriteByte(' ')
	b.WriteString(path)
	if method == MethodPost && payload != "" {
		b.WriteByte(' ')
		b.WriteString(payload)
	}
	return b.String()
}
