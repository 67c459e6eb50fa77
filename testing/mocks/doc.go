// Package mocks provides testify-based mocks of the pipeline's collaborator
// interfaces: the token store, the connectivity probe and the transport.
//
//	tokens := &mocks.MockTokenStore{}
//	tokens.On("AccessToken", mock.Anything).Return("abc", nil)
package mocks
