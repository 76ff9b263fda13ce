// Package catalog holds the domain model for the audiobook catalog:
// stored search results and the download jobs created from them.
package catalog
