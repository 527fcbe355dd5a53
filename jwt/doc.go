// Package jwt issues and verifies the signed session tokens handed out after
// a fully authenticated login, using configured signing keys and strict
// validation semantics.
package jwt
