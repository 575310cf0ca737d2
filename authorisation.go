package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
)

// verifies HS256 tokens signed with the dashboard's shared secret
type verifier struct {
	secret []byte
}

type ctxKey string

const CtxKeyclaims = ctxKey("claims")

func NewVerifier(secret string) *verifier {
	return &verifier{secret: []byte(secret)}
}

func (v *verifier) KeyFunc(token *jwt.Token) (interface{}, error) {
	// refuse anything that isn't hmac, eg "none" or an RS256 token
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
	return v.secret, nil
}

func (v *verifier) authoriseJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// extract token from header
		tokenString := r.Header.Get("Authorization")
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		// parse token
		token, err := jwt.ParseWithClaims(tokenString, &jwt.StandardClaims{}, v.KeyFunc)
		if err != nil {
			log.Printf("failed to auth, %v", err)
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// check if the JWT is valid
		claims, ok := token.Claims.(*jwt.StandardClaims)
		if ok && token.Valid {
			// put the claims into the context so the next handler can use them
			ctx := context.WithValue(r.Context(), CtxKeyclaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		} else {
			log.Printf("token not valid")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
		}
	})
}

// will log errors
func extractUserID(r *http.Request) (string, error) {
	// get userID from JWT claims
	val := r.Context().Value(CtxKeyclaims)
	if val == nil {
		err := fmt.Errorf("no claims in context. Context: %v", r.Context())
		log.Printf("extractUserID error: %v", err)
		return "", err
	}

	claims, ok := val.(*jwt.StandardClaims)
	if !ok {
		err := fmt.Errorf("claims are not of type *jwt.StandardClaims. Type: %T, Value: %v", val, val)
		log.Printf("extractUserID error: %v", err)
		return "", err
	}

	return claims.Subject, nil
}

// admin endpoints take the api key in the LS-API-Key header
func requireAdminKey(expectedAdminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expectedAdminKey == "" || r.Header.Get("LS-API-Key") != expectedAdminKey {
				http.Error(w, "", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowedOrigins := []string{
			"http://localhost:3000",
			"https://dev.lightspeedapp.xyz",
			"https://lightspeedapp.xyz",
		}

		isAllowed := false
		for _, allowedOrigin := range allowedOrigins {
			if allowedOrigin == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				isAllowed = true
				break
			}
		}
		if !isAllowed {
			w.Header().Set("Access-Control-Allow-Origin", "none")
		}

		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, LS-API-Key")

		// if it's just an OPTIONS request (a preflight request), nothing other than the headers is needed
		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}
