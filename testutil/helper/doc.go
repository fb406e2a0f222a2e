// Package helper provides fixtures and observability spies for lending tests.
package helper
