// Package auth authenticates relay clients by API key.
//
// Keys come from configuration:
//
//	security:
//	  authentication:
//	    enabled: true
//	    header: Authorization
//	    keys:
//	      - key: sk-team-a
//	        user_id: team-a
//
// Middleware answers unknown, disabled and missing keys with a 401 in the
// OpenAI error format. Admitted requests carry the key's APIKeyInfo in
// their context, which the chat handler uses as the default user ID.
// The key set is replaced in place when the configuration reloads.
package auth
