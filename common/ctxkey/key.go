package ctxkey

const (
	// UserId is the authenticated user id for the current request.
	// Set in: middleware/auth (access-token branch). Zero for anonymous callers.
	UserId = "user_id"

	// Tier is the caller's subscription tier (ratelimit.Tier string form).
	// Set in: middleware/auth. Defaults to "anonymous" when identity is absent.
	Tier = "tier"

	// IsAdmin marks accounts carrying the administrative flag.
	// Set in: middleware/auth from the verified token claims, never from request input.
	IsAdmin = "is_admin"

	// RateLimitIdentity is the resolved ratelimit.Identity for the caller.
	// Set in: middleware/auth. Read in: middleware/rate-limit.
	RateLimitIdentity = "rate_limit_identity"

	// RequestModel is the model id named by the chat request body, if any.
	// Set in: controller/chat before opening the upstream stream.
	RequestModel = "request_model"

	// SessionId identifies one completion request/response cycle for logging.
	// Set in: controller/chat when the StreamSession is created.
	SessionId = "session_id"
)
