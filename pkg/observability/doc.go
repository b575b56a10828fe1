/*
Package observability turns engine lifecycle callbacks into metrics and logs.

Metrics counts committed and rejected transitions and hook outcomes on its
own prometheus registry. Chain combines several LifecycleHooks so metrics,
logging and user callbacks can all observe the same engine.
*/
package observability
