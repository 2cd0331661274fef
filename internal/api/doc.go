// Package api contains the HTTP handlers, request/response models and error
// mapping for the admin API. Handlers stay thin: decode, validate, call the
// service layer, translate errors through MapErrorToStatusCode.
package api
