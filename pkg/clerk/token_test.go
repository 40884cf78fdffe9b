package clerk

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func makeToken(t *testing.T, payload string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256"}`))
	body := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return header + "." + body + ".signature"
}

func TestSubjectFromJWT(t *testing.T) {
	token := makeToken(t, `{"sub":"user_2abc","exp":1700000000}`)
	assert.Equal(t, "user_2abc", SubjectFromJWT(token))
}

func TestSubjectFromJWTPadding(t *testing.T) {
	// Payload lengths that need 1, 2 and 3 padding characters
	for _, sub := range []string{"u", "us", "use", "user"} {
		token := makeToken(t, `{"sub":"`+sub+`"}`)
		assert.Equal(t, sub, SubjectFromJWT(token))
	}
}

func TestSubjectFromJWTMalformed(t *testing.T) {
	cases := []string{
		"",
		"not-a-token",
		"only.two",
		"a.!!!invalid-base64!!!.c",
		makeToken(t, `not json at all`),
		makeToken(t, `{"no_sub":"here"}`),
	}
	for _, token := range cases {
		sub := SubjectFromJWT(token)
		assert.NotEmpty(t, sub, "token %q should yield a synthesized subject", token)
	}
}

func TestSubjectFromJWTMalformedUnique(t *testing.T) {
	// Synthesized ids must not collide between accounts
	a := SubjectFromJWT("bad")
	b := SubjectFromJWT("bad")
	assert.NotEqual(t, a, b)
}
