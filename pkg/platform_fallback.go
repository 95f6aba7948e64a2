//go:build !unix

package pkg

func addOSFacts(facts map[string]interface{}) {}
