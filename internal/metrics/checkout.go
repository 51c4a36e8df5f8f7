package metrics

// HTTPRequest records a served HTTP request.
func HTTPRequest(method, path, status string) {
	if !enabled {
		return
	}
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// OrderAttempt records one provider call of the order creation loop.
func OrderAttempt(result string) {
	if !enabled {
		return
	}
	orderAttemptsTotal.WithLabelValues(result).Inc()
}

// OrderOutcome records the classification of a created order.
func OrderOutcome(outcome string) {
	if !enabled {
		return
	}
	orderOutcomesTotal.WithLabelValues(outcome).Inc()
}

// Signing records a signing request. path is "auto" or "manual".
func Signing(path, result string) {
	if !enabled {
		return
	}
	signingTotal.WithLabelValues(path, result).Inc()
}

// OrderWatch records an order status check.
func OrderWatch(status string) {
	if !enabled {
		return
	}
	watcherTotal.WithLabelValues(status).Inc()
}

// Search records a product search.
func Search(result string) {
	if !enabled {
		return
	}
	searchTotal.WithLabelValues(result).Inc()
}
