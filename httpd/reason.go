package httpd

// reasonPhrase returns the phrase for the status codes this engine
// emits or relays. Unknown codes get an empty phrase; the status line
// still carries the trailing space the wire format requires.
func reasonPhrase(code int) string {
	switch code {
	case 101:
		return "Switching Protocols"
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 204:
		return "No Content"
	case 307:
		return "Temporary Redirect"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 414:
		return "Request-URI Too Long"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	default:
		return ""
	}
}
