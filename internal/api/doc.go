// Package api exposes the REST surface for wallet custody and agent function
// dispatch. All business endpoints sit behind bearer token authentication;
// only the health probe and the metrics endpoint are public.
package api
