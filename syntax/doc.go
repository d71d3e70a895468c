/*
Package syntax holds string-level validation for the identifiers that flow
through the timeline network: user handles, topic names, post ids, and
datetimes.

Always use the Parse* functions instead of wrapping strings directly,
especially when working with network input.
*/
package syntax
