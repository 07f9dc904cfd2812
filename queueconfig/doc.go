// Package queueconfig resolves logical queue keys into concrete SQS queue
// destinations.
//
// A queue key such as "ORDER_PERSISTENCE_QUEUE" is resolved against an
// environment-style [Source] in the following order:
//
//  1. <KEY>_URL, used verbatim when present.
//  2. AWS_ENDPOINT_URL + "/" + AWS_ACCOUNT_ID + "/" + <KEY>_NAME, when the
//     endpoint and the queue name are present. A single trailing "/" on the
//     endpoint is dropped and the account id defaults to [DefaultAccountID].
//
// When neither path yields a URL, resolution fails with a [*ConfigError].
// Resolution is pure: the same source always produces the same result.
package queueconfig
