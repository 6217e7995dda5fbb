/*
Package session serializes access to conversation threads.

Turns of the same thread must never interleave: the Manager holds a per-thread
lock (reference counted, so idle threads cost nothing) for the whole
load-run-checkpoint cycle, and optionally a distributed lock so replicas sharing
a checkpoint store serialize as well. Turns of different threads run in parallel.
*/
package session
