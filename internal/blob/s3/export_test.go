package s3blob

var NormaliseEndpoint = normaliseEndpoint
