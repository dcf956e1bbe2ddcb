// Package modules groups the optional features mounted under the
// authenticated API. Each subpackage implements module.Module.
package modules
